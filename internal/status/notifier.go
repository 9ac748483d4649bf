package status

import (
	"time"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"github.com/robfig/cron/v3"
)

// Notifier periodically polls every client's status document and publishes a
// ClientStatusChangeEvent whenever a record differs from the one observed
// last. Used while client processes run in parallel and their stdout streams
// interleave.
type Notifier struct {
	st            *store.Store
	clients       []*model.ClientDescriptor
	eventBus      *events.EventBus
	cronScheduler *cron.Cron
	lastObserved  map[string]model.StatusRecord
}

func NewNotifier(st *store.Store, clients []*model.ClientDescriptor, eventBus *events.EventBus) *Notifier {
	return &Notifier{
		st:            st,
		clients:       clients,
		eventBus:      eventBus,
		cronScheduler: cron.New(cron.WithSeconds()),
		lastObserved:  make(map[string]model.StatusRecord),
	}
}

func (n *Notifier) Start() {
	n.cronScheduler.AddFunc("@every 1s", n.notifyStatusChanges)

	n.cronScheduler.Start()
}

func (n *Notifier) Stop() {
	n.cronScheduler.Stop()
}

func (n *Notifier) notifyStatusChanges() {
	for _, client := range n.clients {
		space, err := n.st.Space(client.SpaceName)
		if err != nil {
			continue
		}

		record, found, err := Read(space)
		if err != nil || !found {
			continue
		}

		last, seen := n.lastObserved[client.Id]
		if seen && last.Stage == record.Stage && last.Epoch == record.Epoch && last.Timestamp == record.Timestamp {
			continue
		}
		n.lastObserved[client.Id] = record

		n.eventBus.Publish(events.Event{
			Type:      common.CLIENT_STATUS_CHANGE_EVENT_TYPE,
			Timestamp: time.Now(),
			Data: events.ClientStatusChangeEvent{
				ClientId: client.Id,
				Status:   record,
			},
		})
	}
}
