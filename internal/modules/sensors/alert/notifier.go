// Package alert emails a notice when a reading is classified as dangerous and
// audits every attempt.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"minewatch-server/internal/metrics"
	"minewatch-server/internal/modules/sensors/types"
)

const Subject = "ALERT BAHAYA Sensor"

const (
	msgSent      = "Email BAHAYA berhasil dikirim."
	msgFailedFmt = "Gagal mengirim email: %v"
)

// ErrNotConfigured is reported when no mail transport was set up.
var ErrNotConfigured = errors.New("alert mail transport not configured")

// Alert describes the dangerous reading being reported.
type Alert struct {
	Site   string
	Time   time.Time
	Values types.Values
}

type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers one message. Implementations make a single attempt.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Notifier struct {
	sender   Sender
	from     string
	to       []string
	attempts AttemptRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Notifier)

// WithAttempts records every attempt in repo.
func WithAttempts(repo AttemptRepository) Option {
	return func(n *Notifier) { n.attempts = repo }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier builds a notifier. A nil sender yields a notifier whose every
// attempt fails with ErrNotConfigured.
func NewNotifier(sender Sender, from string, to []string, opts ...Option) *Notifier {
	n := &Notifier{
		sender: sender,
		from:   from,
		to:     to,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Notify makes exactly one send attempt. Failures are reported in the Result,
// never as an error.
func (n *Notifier) Notify(ctx context.Context, a Alert) Result {
	var err error
	if n.sender == nil {
		err = ErrNotConfigured
	} else {
		err = n.sender.Send(ctx, Message{
			From:    n.from,
			To:      n.to,
			Subject: Subject,
			Body:    Body(a),
		})
	}

	res := Result{OK: true, Message: msgSent}
	if err != nil {
		res = Result{OK: false, Message: fmt.Sprintf(msgFailedFmt, err)}
		n.logger.Warn("alert email failed", "site", a.Site, "error", err)
	} else {
		n.logger.Info("alert email sent", "site", a.Site)
	}
	n.metrics.ObserveAlert(res.OK)
	n.record(ctx, a, res)
	return res
}

func (n *Notifier) record(ctx context.Context, a Alert, res Result) {
	if n.attempts == nil {
		return
	}
	err := n.attempts.InsertAttempt(ctx, Attempt{
		Site:        a.Site,
		ReadingTime: a.Time.Format(types.TimeLayout),
		Values:      a.Values,
		OK:          res.OK,
		Message:     res.Message,
		AttemptedAt: n.now(),
	})
	if err != nil {
		n.logger.Error("record alert attempt", "site", a.Site, "error", err)
	}
}

// Body renders the plain-text notice.
func Body(a Alert) string {
	return "\nPERHATIAN‼️\n\n" +
		"Status: *BAHAYA*\n" +
		"Waktu: " + a.Time.Format(types.TimeLayout) + "\n\n" +
		"Getaran: " + strconv.FormatFloat(a.Values.Vibration, 'f', -1, 64) + " g\n" +
		"Suhu: " + strconv.Itoa(a.Values.Temperature) + " °C\n" +
		"Tekanan: " + strconv.FormatFloat(a.Values.Pressure, 'f', -1, 64) + " bar\n" +
		"Kelembapan: " + strconv.Itoa(a.Values.Humidity) + " %\n\n" +
		"Segera lakukan pemeriksaan!\n"
}
