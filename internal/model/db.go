package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&LinkMapping{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&ViewingSession{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&PageEvent{}); err != nil {
		return err
	}

	return nil
}
