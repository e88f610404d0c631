package service

import "github.com/emrgen/docview/internal/store"

// Services bundles the core services over one store with shared options.
type Services struct {
	Documents  *DocumentService
	Links      *LinkResolver
	Sessions   *SessionManager
	Folder     *PageEventFolder
	Aggregator *Aggregator
}

// New wires every core service over the store.
func New(store store.Store, opts Options) *Services {
	c := newCore(store, opts)
	links := &LinkResolver{core: c}
	folder := &PageEventFolder{core: c}

	return &Services{
		Documents:  &DocumentService{core: c, links: links},
		Links:      links,
		Sessions:   &SessionManager{core: c, folder: folder},
		Folder:     folder,
		Aggregator: &Aggregator{core: c},
	}
}
