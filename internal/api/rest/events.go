package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/osa030/moodmelody/internal/app/notification"
)

// events streams notifications as server-sent events, starting with the current state.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	nm := h.mood.NotificationManager()

	// Subscribe first so nothing is missed between the snapshot and the stream
	stream := notification.NewChanStream(64)
	subscriptionID := nm.Subscribe(stream)
	defer nm.Unsubscribe(subscriptionID)

	initial := &notification.Notification{
		Type:       notification.TypeInitialState,
		SequenceNo: nm.NextSequenceNo(),
		Status:     h.mood.Status(),
		At:         time.Now(),
	}
	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-nm.Done():
			return
		case n := <-stream.C():
			if err := writeEvent(w, n); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, n *notification.Notification) error {
	data, err := json.Marshal(toNotificationDTO(n))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.SequenceNo, n.Type, data)
	return err
}
