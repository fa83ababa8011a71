package api

import (
	"net/http"

	"tucomercio/internal/services"
)

func (h *handler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.svc.Chats.ListChats(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *handler) unreadChats(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Chats.UnreadTotal(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *handler) openSupportChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.Chats.OpenSupportChat(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *handler) openBusinessChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.Chats.OpenBusinessChat(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *handler) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.Chats.Get(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	before, err := queryTime(r, "before")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msgs, err := h.svc.Chats.ListMessages(r.Context(), principal(r), pathVar(r, "id"), before, queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := h.decode(r, "chat.send", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.svc.Chats.Send(r.Context(), principal(r), pathVar(r, "id"), in.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handler) markChatRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Chats.MarkRead(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (h *handler) feed(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	items, err := h.svc.Notifications.Feed(r.Context(), principal(r), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) unreadNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notifications.UnreadCount(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.MarkRead(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notifications.MarkAllRead(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (h *handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.Delete(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var in services.BroadcastInput
	if err := h.decode(r, "notification.broadcast", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	n, recipients, err := h.svc.Notifications.Broadcast(r.Context(), principal(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"notification": n, "recipients": recipients})
}
