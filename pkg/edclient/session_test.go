package edclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeServer serves the REST and socket endpoints a session uses.
type fakeServer struct {
	*httptest.Server

	mu      sync.Mutex
	inbox   Inbox
	patient []EmergencyPatient
	ws      *websocket.Conn
	joined  chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{joined: make(chan struct{}, 4)}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(LoginResult{Token: "tok", User: &User{ID: "u1", Username: "house", Role: "doctor"}})
	})
	mux.HandleFunc("/api/notifications", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.inbox)
	}))
	mux.HandleFunc("/api/emergency-patients", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.patient)
	}))
	mux.HandleFunc("/ws", authed(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.ws = c
		f.mu.Unlock()
		f.joined <- struct{}{}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) push(t *testing.T, eventType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(data)
	ev, _ := json.Marshal(Event{Type: eventType, Data: raw})
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ws.WriteMessage(websocket.TextMessage, ev); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSession_LoginWiresRealtimeNotifications(t *testing.T) {
	srv := newFakeServer(t)
	srv.inbox = Inbox{Notifications: []Notification{{ID: "n1"}}, UnreadCount: 1}

	s, err := Login(context.Background(), Config{BaseURL: srv.URL}, "house", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	defer s.Close()

	if s.User == nil || s.User.Role != "doctor" {
		t.Errorf("expected user on session, got %+v", s.User)
	}
	if snap := s.Notifications.Snapshot(); snap.UnreadCount != 1 {
		t.Errorf("expected inbox loaded at login, got %+v", snap)
	}

	<-srv.joined
	waitState(t, s.Socket, StateConnected)

	srv.push(t, EventNotification, map[string]interface{}{
		"message":      "New emergency case assigned",
		"notification": Notification{ID: "n2", Type: "doctor_assignment"},
	})
	eventually(t, func() bool { return s.Notifications.Snapshot().UnreadCount == 2 })

	srv.mu.Lock()
	srv.patient = []EmergencyPatient{{ID: "p1", FirstName: "John", LastName: "Doe", EmergencyLevel: "high"}}
	srv.mu.Unlock()
	srv.push(t, EventEmergencyChanged, map[string]string{"patientId": "p1"})
	eventually(t, func() bool { return len(s.Triage.Patients()) == 1 })
}

func TestSession_CloseTearsDown(t *testing.T) {
	srv := newFakeServer(t)
	srv.inbox = Inbox{Notifications: []Notification{{ID: "n1"}}, UnreadCount: 1}

	s, err := NewSession(context.Background(), Config{BaseURL: srv.URL}, "tok")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	<-srv.joined
	waitState(t, s.Socket, StateConnected)

	s.Close()
	s.Close()

	if s.Socket.IsConnected() || s.Socket.Conn() != nil {
		t.Error("expected socket torn down")
	}
	if s.API.HasToken() {
		t.Error("expected token dropped")
	}
	if snap := s.Notifications.Snapshot(); len(snap.Notifications) != 0 {
		t.Error("expected inbox cleared")
	}
}

func TestNewSession_RequiresToken(t *testing.T) {
	if _, err := NewSession(context.Background(), Config{BaseURL: "http://localhost"}, ""); err == nil {
		t.Error("expected error without token")
	}
}
