package infra

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordedNotification struct {
	title   string
	message string
}

type notificationRecorder struct {
	mu   sync.Mutex
	sent []recordedNotification
	err  error
}

func (r *notificationRecorder) fn(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, recordedNotification{title, message})
	return r.err
}

func (r *notificationRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.message)
	}
	return out
}

func TestDesktopAlerts_Block(t *testing.T) {
	notify, alert := &notificationRecorder{}, &notificationRecorder{}
	a := NewDesktopAlertsWithNotifier(notify.fn, alert.fn, zap.NewNop())

	a.TriggerBlock("steam", "Steam")
	a.TriggerBlock("dota2", "")
	a.Wait()

	assert.Empty(t, notify.messages())
	assert.ElementsMatch(t, []string{
		"Steam is blocked: your time bank is empty. Earn time with productive apps.",
		"dota2 is blocked: your time bank is empty. Earn time with productive apps.",
	}, alert.messages())
	assert.Equal(t, alertTitle, alert.sent[0].title)
}

func TestDesktopAlerts_Reminder(t *testing.T) {
	notify := &notificationRecorder{}
	a := NewDesktopAlertsWithNotifier(notify.fn, notify.fn, zap.NewNop())

	a.ShowReminder(45)
	a.Wait()

	assert.Equal(t, []string{"You have been on this app for 45 seconds."}, notify.messages())
}

func TestDesktopAlerts_DeliveryErrorIsSwallowed(t *testing.T) {
	notify := &notificationRecorder{err: errors.New("no dbus")}
	a := NewDesktopAlertsWithNotifier(notify.fn, notify.fn, zap.NewNop())

	assert.NotPanics(t, func() {
		a.ShowReminder(5)
		a.Wait()
	})
	assert.Len(t, notify.messages(), 1)
}

func TestDesktopAlerts_StatusText(t *testing.T) {
	a := NewDesktopAlertsWithNotifier(nil, nil, zap.NewNop())
	assert.Empty(t, a.StatusText())

	a.UpdateStatusText("Using code, earned 5s")
	assert.Equal(t, "Using code, earned 5s", a.StatusText())
}

func TestFormatDwell(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0 seconds"},
		{59, "59 seconds"},
		{60, "1 minute"},
		{119, "1 minute"},
		{300, "5 minutes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDwell(tt.seconds))
	}
}
