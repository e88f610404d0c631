package store

import (
	"context"
	"time"

	"github.com/emrgen/docview/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	return translate(g.db.WithContext(ctx).Create(doc).Error)
}

func (g *GormStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := g.db.WithContext(ctx).Unscoped().Where("id = ?", id).Take(&doc).Error
	if err != nil {
		return nil, translate(err)
	}

	return &doc, nil
}

func (g *GormStore) LockDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := g.db.WithContext(ctx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&doc).Error
	if err != nil {
		return nil, translate(err)
	}

	return &doc, nil
}

func (g *GormStore) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	var docs []*model.Document
	err := g.db.WithContext(ctx).Order("created_at desc").Find(&docs).Error
	return docs, translate(err)
}

func (g *GormStore) UpdatePageCount(ctx context.Context, id string, pages int) error {
	res := g.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("page_count", pages)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) SoftDeleteDocument(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// EraseDocument removes the document and everything hanging off it.
// NOTE: should run in a transaction
func (g *GormStore) EraseDocument(ctx context.Context, id string) error {
	db := g.db.WithContext(ctx)

	if err := db.Where("document_id = ?", id).Delete(&model.PageEvent{}).Error; err != nil {
		return translate(err)
	}

	if err := db.Where("document_id = ?", id).Delete(&model.ViewingSession{}).Error; err != nil {
		return translate(err)
	}

	if err := db.Where("document_id = ?", id).Delete(&model.LinkMapping{}).Error; err != nil {
		return translate(err)
	}

	res := db.Unscoped().Where("id = ?", id).Delete(&model.Document{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	logrus.Infof("erased document %s", id)

	return nil
}

func (g *GormStore) DocumentTotals(ctx context.Context, ids []string) (map[string]DocumentTotals, error) {
	totals := make(map[string]DocumentTotals, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}

	var rows []DocumentTotals
	err := g.db.WithContext(ctx).
		Table("viewing_sessions AS vs").
		Select(`vs.document_id AS document_id,
			COUNT(DISTINCT vs.token) AS sessions,
			COUNT(pe.page_number) AS views,
			COALESCE(SUM(pe.duration), 0) AS duration,
			COUNT(DISTINCT pe.page_number) AS unique_pages`).
		Joins("LEFT JOIN page_events AS pe ON pe.session_token = vs.token").
		Where("vs.document_id IN ?", ids).
		Where("vs.is_admin = ?", false).
		Group("vs.document_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	for _, row := range rows {
		totals[row.DocumentID] = row
	}

	return totals, nil
}

func (g *GormStore) CreateLinkMapping(ctx context.Context, link *model.LinkMapping) error {
	return translate(g.db.WithContext(ctx).Create(link).Error)
}

func (g *GormStore) DeactivateLinkMappings(ctx context.Context, docID string) (int64, error) {
	res := g.db.WithContext(ctx).
		Model(&model.LinkMapping{}).
		Where("document_id = ? AND active = ?", docID, true).
		Update("active", false)

	return res.RowsAffected, translate(res.Error)
}

func (g *GormStore) GetLinkMapping(ctx context.Context, token string) (*model.LinkMapping, error) {
	var link model.LinkMapping
	err := g.db.WithContext(ctx).Where("public_token = ?", token).Take(&link).Error
	if err != nil {
		return nil, translate(err)
	}

	return &link, nil
}

func (g *GormStore) GetActiveLinkMapping(ctx context.Context, docID string) (*model.LinkMapping, error) {
	var link model.LinkMapping
	err := g.db.WithContext(ctx).
		Where("document_id = ? AND active = ?", docID, true).
		Order("created_at desc").
		Take(&link).Error
	if err != nil {
		return nil, translate(err)
	}

	return &link, nil
}

func (g *GormStore) TouchLinkMapping(ctx context.Context, token string, at time.Time) error {
	res := g.db.WithContext(ctx).
		Model(&model.LinkMapping{}).
		Where("public_token = ? AND active = ?", token, true).
		Updates(map[string]any{
			"last_used_at": at,
			"view_count":   gorm.Expr("view_count + ?", 1),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) CreateSession(ctx context.Context, session *model.ViewingSession) error {
	return translate(g.db.WithContext(ctx).Create(session).Error)
}

func (g *GormStore) GetSession(ctx context.Context, token string) (*model.ViewingSession, error) {
	var session model.ViewingSession
	err := g.db.WithContext(ctx).Where("token = ?", token).Take(&session).Error
	if err != nil {
		return nil, translate(err)
	}

	return &session, nil
}

func (g *GormStore) LockSession(ctx context.Context, token string) (*model.ViewingSession, error) {
	var session model.ViewingSession
	err := g.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ?", token).
		Take(&session).Error
	if err != nil {
		return nil, translate(err)
	}

	return &session, nil
}

func (g *GormStore) UpdateSession(ctx context.Context, token string, fields map[string]any) error {
	res := g.db.WithContext(ctx).Model(&model.ViewingSession{}).Where("token = ?", token).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*model.ViewingSession, error) {
	query := g.db.WithContext(ctx).Where("document_id = ?", filter.DocumentID)
	if !filter.IncludeAdmin {
		query = query.Where("is_admin = ?", false)
	}
	if filter.From != nil {
		query = query.Where("started_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("started_at < ?", filter.To.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var sessions []*model.ViewingSession
	err := query.Order("started_at desc").Find(&sessions).Error
	return sessions, translate(err)
}

func (g *GormStore) ListIdleSessions(ctx context.Context, before time.Time, limit int) ([]*model.ViewingSession, error) {
	query := g.db.WithContext(ctx).
		Where("status = ? AND last_activity_at < ?", model.SessionActive, before.UTC()).
		Order("last_activity_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var sessions []*model.ViewingSession
	err := query.Find(&sessions).Error
	return sessions, translate(err)
}

func (g *GormStore) LockPageEvent(ctx context.Context, token string, page int) (*model.PageEvent, error) {
	var event model.PageEvent
	err := g.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_token = ? AND page_number = ?", token, page).
		Take(&event).Error
	if err != nil {
		return nil, translate(err)
	}

	return &event, nil
}

func (g *GormStore) CreatePageEvent(ctx context.Context, event *model.PageEvent) error {
	return translate(g.db.WithContext(ctx).Create(event).Error)
}

func (g *GormStore) UpdatePageEvent(ctx context.Context, token string, page int, fields map[string]any) error {
	res := g.db.WithContext(ctx).
		Model(&model.PageEvent{}).
		Where("session_token = ? AND page_number = ?", token, page).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) ListPageEvents(ctx context.Context, tokens ...string) ([]*model.PageEvent, error) {
	var events []*model.PageEvent
	if len(tokens) == 0 {
		return events, nil
	}

	err := g.db.WithContext(ctx).
		Where("session_token IN ?", tokens).
		Order("session_token, page_number").
		Find(&events).Error
	return events, translate(err)
}

func (g *GormStore) SummarizePageEvents(ctx context.Context, token string) (PageSummary, error) {
	var summary PageSummary
	err := g.db.WithContext(ctx).
		Model(&model.PageEvent{}).
		Select("COALESCE(SUM(duration), 0) AS total_duration, COUNT(DISTINCT page_number) AS unique_pages").
		Where("session_token = ?", token).
		Scan(&summary).Error
	return summary, translate(err)
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return translate(g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	}))
}
