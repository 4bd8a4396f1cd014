package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/common"
	"github.com/telsalud/notefmt/internal/interfaces"
)

// Manager is the storage facade over a single Badger instance. Entity stores
// go through badgerhold; the durable queue shares the raw *badger.DB.
type Manager struct {
	db        *BadgerDB
	logger    arbor.ILogger
	jobs      *JobStorage
	proposals *ProposalStorage
	notes     *NoteStorage
}

// NewManager opens the database and wires up all stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
	}

	return &Manager{
		db:        db,
		logger:    logger,
		jobs:      NewJobStorage(db, logger),
		proposals: NewProposalStorage(db, logger),
		notes:     NewNoteStorage(db, logger),
	}, nil
}

// JobStorage returns the format job store
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// ProposalStorage returns the proposal store
func (m *Manager) ProposalStorage() interfaces.ProposalStorage {
	return m.proposals
}

// NoteStorage returns the note/consultation store
func (m *Manager) NoteStorage() interfaces.NoteStorage {
	return m.notes
}

// DB exposes the raw Badger handle for the queue manager
func (m *Manager) DB() *badgerdb.DB {
	return m.db.Store().Badger()
}

// Close closes the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
