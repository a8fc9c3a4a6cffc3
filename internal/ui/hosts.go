package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/events"
	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
)

// snapshotMsg carries a lifecycle callback into the Bubble Tea loop.
type snapshotMsg[T any] struct {
	mountID  string
	snapshot *model.Snapshot[T]
	// failures holds the records the snapshot introduced, set only when it failed.
	failures []errstore.Record
}

// problemsMsg mirrors a coordinator's local error store.
type problemsMsg struct {
	subject string
	mountID string
	records []errstore.Record
}

type navigateMsg events.Navigate

type noticeMsg events.Notice

// viewHost forwards lifecycle callbacks to the program as messages. It runs on
// the coordinator goroutine and never touches the Model directly.
type viewHost[T any] struct {
	send    func(tea.Msg)
	bus     *events.Bus
	mountID string
}

func (h *viewHost[T]) OnInit(s *model.Snapshot[T], _ string) error {
	h.send(snapshotMsg[T]{mountID: h.mountID, snapshot: s})
	return nil
}

func (h *viewHost[T]) OnChange(s *model.Snapshot[T], _ string) error {
	h.send(snapshotMsg[T]{mountID: h.mountID, snapshot: s})
	return nil
}

func (h *viewHost[T]) OnError(s *model.Snapshot[T], _ string, distinct []errstore.Record) error {
	h.send(snapshotMsg[T]{mountID: h.mountID, snapshot: s, failures: distinct})
	if s.SubjectID != pipelines.SubjectDetail || h.bus == nil {
		return nil
	}
	if rec, ok := pipelines.NotFound(distinct); ok {
		h.bus.Publish(events.TopicNavigate, events.Navigate{
			Subject: pipelines.SubjectList,
			Reason:  rec.Code,
		})
	}
	return nil
}

// watchProblems forwards every change of store to the program. The listener
// goes away when the coordinator disposes the store.
func watchProblems(store *errstore.Store, subject, mountID string, send func(tea.Msg)) {
	store.OnChange(func(s *errstore.Store) {
		send(problemsMsg{subject: subject, mountID: mountID, records: s.Records()})
	})
}
