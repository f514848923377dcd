// Package router interprets inbound server pushes: it reconciles message
// confirmations against the local cache, pokes the query-cache collaborator,
// and surfaces the few events worth telling the user about. Malformed frames
// are logged and dropped; nothing in here may crash the host.
package router

import (
	"github.com/yanun0323/logs"

	"main/internal/cache"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/schema"
	"main/internal/signal"
)

const previewLimit = 50

// Router dispatches inbound frames to semantic handlers.
type Router struct {
	cache       *cache.Store
	invalidator cache.Invalidator
	notifier    notify.Notifier
	signals     *signal.Registry
	metrics     *obs.Metrics
	localUserID int64
}

// New builds a router. Nil collaborators degrade to no-ops.
func New(store *cache.Store, inv cache.Invalidator, notifier notify.Notifier, signals *signal.Registry, metrics *obs.Metrics, localUserID int64) *Router {
	if inv == nil {
		inv = cache.NopInvalidator{}
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Router{
		cache:       store,
		invalidator: inv,
		notifier:    notifier,
		signals:     signals,
		metrics:     metrics,
		localUserID: localUserID,
	}
}

// HandleFrame is the single inbound entry point.
func (r *Router) HandleFrame(data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logs.Errorf("router: handler panic: %v", rec)
		}
	}()

	env, err := schema.DecodeEnvelope(data)
	if err != nil {
		r.metrics.AddMalformed(1)
		logs.Warnf("router: dropping malformed frame: %v", err)
		return
	}
	r.metrics.CountFrame(env.Type)

	// Signaling subscribers see every envelope; they are orthogonal to the
	// semantic handlers below.
	r.signals.Publish(env)

	switch env.Type {
	case schema.EventNewMessage:
		r.handleNewMessage(env)
	case schema.EventUserOnline, schema.EventUserOffline:
		r.invalidator.InvalidateContacts()
	case schema.EventReactionUpdated:
		r.handleReaction(env)
	case schema.EventRoomUpdated:
		r.handleRoomUpdate(env)
	case schema.EventReminder:
		r.handleReminder(env)
	case schema.EventAuthSuccess:
		logs.Infof("router: authentication confirmed")
	case schema.EventAuthError:
		r.handleAuthError(env)
	case schema.EventError:
		r.handleServerError(env)
	default:
		logs.Debugf("router: ignoring event type %q", env.Type)
	}
}

func (r *Router) handleNewMessage(env schema.Envelope) {
	var ev schema.NewMessageEvent
	if err := env.Decode(&ev); err != nil {
		logs.Warnf("router: bad new_message payload: %v", err)
		return
	}
	msg := ev.Message

	outcome := r.cache.Reconcile(msg.ChatRoomID, msg)
	if outcome == cache.OutcomeInserted {
		r.invalidator.InvalidateRoomMessages(msg.ChatRoomID)
		r.invalidator.InvalidateRoomList()
	}

	if msg.SenderID != r.localUserID {
		r.notifier.Show(notify.Notification{
			Title:       msg.SenderName(),
			Description: truncate(msg.Content, previewLimit),
			Variant:     notify.VariantDefault,
		})
	}
}

func (r *Router) handleReaction(env schema.Envelope) {
	var ev schema.ReactionEvent
	if err := env.Decode(&ev); err != nil {
		logs.Warnf("router: bad reaction_updated payload: %v", err)
		return
	}
	r.invalidator.InvalidateRoomMessages(ev.ChatRoomID)
}

func (r *Router) handleRoomUpdate(env schema.Envelope) {
	var ev schema.RoomUpdateEvent
	if err := env.Decode(&ev); err != nil {
		logs.Warnf("router: bad chatRoomUpdated payload: %v", err)
		return
	}
	r.invalidator.InvalidateRoomList()
	r.invalidator.InvalidateRoomMessages(ev.ChatRoomID)
	r.invalidator.InvalidateRoomParticipants(ev.ChatRoomID)
	// A nil image is still broadcast: removal must reach image consumers.
	r.invalidator.InvalidateProfileImage(ev.ChatRoomID, ev.ImageURL)
}

func (r *Router) handleReminder(env schema.Envelope) {
	var ev schema.ReminderEvent
	if err := env.Decode(&ev); err != nil {
		logs.Warnf("router: bad reminder payload: %v", err)
		return
	}
	title := ev.Title
	if title == "" {
		title = "Reminder"
	}
	r.notifier.Show(notify.Notification{
		Title:       title,
		Description: ev.Message,
		Variant:     notify.VariantDefault,
	})
	r.invalidator.InvalidateRoomList()
	if ev.ChatRoomID != 0 {
		r.invalidator.InvalidateRoomMessages(ev.ChatRoomID)
	}
}

// handleAuthError only logs: the server decides whether to keep the channel,
// so the router must not tear anything down here.
func (r *Router) handleAuthError(env schema.Envelope) {
	var ev schema.AuthResult
	if err := env.Decode(&ev); err != nil {
		logs.Warnf("router: bad auth_error payload: %v", err)
		return
	}
	logs.Errorf("router: authentication rejected: %s", ev.Error)
}

func (r *Router) handleServerError(env schema.Envelope) {
	var ev schema.ErrorEvent
	if err := env.Decode(&ev); err != nil {
		logs.Warnf("router: bad error payload: %v", err)
		return
	}
	logs.Errorf("router: server error: %s", ev.Message)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
