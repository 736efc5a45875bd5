package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"screeningcomms/internal/queue"
	"screeningcomms/internal/types"
)

// memStore is an in-memory stand-in for the appointment, batch and
// message tables. Do rolls every change back when fn fails.
type memStore struct {
	clinics      map[string]types.Clinic
	appointments map[string]types.Appointment
	batches      map[string]types.MessageBatch
	messages     map[string]types.Message
	seq          int

	failGetForUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		clinics:      map[string]types.Clinic{},
		appointments: map[string]types.Appointment{},
		batches:      map[string]types.MessageBatch{},
		messages:     map[string]types.Message{},
	}
}

func (s *memStore) Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	batches := cloneMap(s.batches)
	messages := cloneMap(s.messages)
	seq := s.seq
	r := Repos{Appointments: s, Batches: batchRepo{s}, Messages: messageRepo{s}}
	if err := fn(ctx, r); err != nil {
		s.batches, s.messages, s.seq = batches, messages, seq
		return err
	}
	return nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) addClinic(c types.Clinic) types.Clinic {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.clinics[c.ID] = c
	return c
}

func (s *memStore) addAppointment(a types.Appointment) types.Appointment {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = types.AppointmentBooked
	}
	if a.Number == 0 {
		a.Number = 1
	}
	s.appointments[a.ID] = a
	return a
}

func (s *memStore) hydrate(id string) *types.Appointment {
	a, ok := s.appointments[id]
	if !ok {
		return nil
	}
	if c, ok := s.clinics[a.ClinicID]; ok {
		a.Clinic = &c
	}
	return &a
}

func (s *memStore) notified(appointmentID string) bool {
	for _, m := range s.messages {
		if m.AppointmentID != appointmentID {
			continue
		}
		if m.Status != types.MessageFailed || m.BatchID != "" || m.NHSNotifyErrors != nil {
			return true
		}
	}
	return false
}

func (s *memStore) ListEligible(_ context.Context, episodeTypes []types.EpisodeType, from, until time.Time) ([]*types.Appointment, error) {
	wanted := map[types.EpisodeType]bool{}
	for _, e := range episodeTypes {
		wanted[e] = true
	}
	var out []*types.Appointment
	for id, a := range s.appointments {
		if a.Status != types.AppointmentBooked || a.Number != 1 || !wanted[a.EpisodeType] {
			continue
		}
		if a.StartsAt.Before(from) || a.StartsAt.After(until) || s.notified(id) {
			continue
		}
		out = append(out, s.hydrate(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) setScheduledAt(id string, at time.Time) {
	b := s.batches[id]
	b.ScheduledAt = &at
	s.batches[id] = b
}

func (s *memStore) tick() time.Time {
	s.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Millisecond)
}

type batchRepo struct{ s *memStore }

func (r batchRepo) Create(_ context.Context, b *types.MessageBatch) error {
	b.ID = uuid.NewString()
	b.CreatedAt = r.s.tick()
	r.s.batches[b.ID] = *b
	return nil
}

func (r batchRepo) GetForUpdate(_ context.Context, id string) (*types.MessageBatch, error) {
	if r.s.failGetForUpdate != nil {
		return nil, r.s.failGetForUpdate
	}
	b, ok := r.s.batches[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundMessageBatch, "message batch not found", nil)
	}
	return &b, nil
}

func (r batchRepo) Update(_ context.Context, b *types.MessageBatch) error {
	if _, ok := r.s.batches[b.ID]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundMessageBatch, "message batch not found", nil)
	}
	r.s.batches[b.ID] = *b
	return nil
}

func (r batchRepo) ListScheduledBefore(_ context.Context, before time.Time) ([]string, error) {
	var ids []string
	for id, b := range r.s.batches {
		if b.Status == types.BatchScheduled && b.ScheduledAt != nil && b.ScheduledAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type messageRepo struct{ s *memStore }

func (r messageRepo) Create(_ context.Context, m *types.Message) error {
	m.ID = uuid.NewString()
	m.CreatedAt = r.s.tick()
	cp := *m
	cp.Appointment = nil
	r.s.messages[m.ID] = cp
	return nil
}

func (r messageRepo) ListByBatch(_ context.Context, batchID string) ([]*types.Message, error) {
	var out []*types.Message
	for _, m := range r.s.messages {
		if m.BatchID != batchID {
			continue
		}
		cp := m
		cp.Appointment = r.s.hydrate(m.AppointmentID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r messageRepo) Update(_ context.Context, m *types.Message) error {
	if _, ok := r.s.messages[m.ID]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundMessage, "message not found", nil)
	}
	cp := *m
	cp.Appointment = nil
	r.s.messages[m.ID] = cp
	return nil
}

func (r messageRepo) MarkBatchMessages(_ context.Context, batchID string, status types.MessageStatus, sentAt *time.Time) (int64, error) {
	var n int64
	for id, m := range r.s.messages {
		if m.BatchID != batchID {
			continue
		}
		m.Status = status
		m.SentAt = sentAt
		r.s.messages[id] = m
		n++
	}
	return n, nil
}

func (s *memStore) messagesOf(batchID string) []types.Message {
	var out []types.Message
	for _, m := range s.messages {
		if m.BatchID == batchID {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) onlyBatch() types.MessageBatch {
	if len(s.batches) != 1 {
		panic(fmt.Sprintf("expected one batch, have %d", len(s.batches)))
	}
	for _, b := range s.batches {
		return b
	}
	return types.MessageBatch{}
}

// fakeNotify answers each submission with the next responder.
type fakeNotify struct {
	responders []func(doc BatchDocument) (*Response, error)
	bodies     []BatchDocument
}

func (f *fakeNotify) SendBatch(_ context.Context, body []byte) (*Response, error) {
	var doc BatchDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	f.bodies = append(f.bodies, doc)
	if len(f.responders) == 0 {
		return nil, fmt.Errorf("unexpected submission %d", len(f.bodies))
	}
	next := f.responders[0]
	f.responders = f.responders[1:]
	return next(doc)
}

func (f *fakeNotify) then(fn func(doc BatchDocument) (*Response, error)) *fakeNotify {
	f.responders = append(f.responders, fn)
	return f
}

// created answers 201 with an upstream id for every message, echoing
// the messageReference.
func created(notifyID string) func(doc BatchDocument) (*Response, error) {
	return func(doc BatchDocument) (*Response, error) {
		type msg struct {
			ID               string `json:"id"`
			MessageReference string `json:"messageReference"`
		}
		var msgs []msg
		for i, m := range doc.Data.Attributes.Messages {
			msgs = append(msgs, msg{ID: fmt.Sprintf("id_%d", i+1), MessageReference: m.MessageReference})
		}
		body, _ := json.Marshal(map[string]any{
			"data": map[string]any{
				"type":       "MessageBatch",
				"id":         notifyID,
				"attributes": map[string]any{"messages": msgs},
			},
		})
		return &Response{StatusCode: 201, Body: body}, nil
	}
}

func respond(code int, body string) func(doc BatchDocument) (*Response, error) {
	return func(BatchDocument) (*Response, error) {
		return &Response{StatusCode: code, Body: []byte(body)}, nil
	}
}

// memQueue is an in-memory retry queue.
type memQueue struct {
	mu      sync.Mutex
	items   []queue.Message
	deleted []string
	seq     int
}

func (q *memQueue) SendJSON(_ context.Context, v any, _ string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := fmt.Sprintf("m%d", q.seq)
	q.items = append(q.items, queue.Message{ID: id, Body: string(body), ReceiptHandle: "rh-" + id})
	return nil
}

func (q *memQueue) Receive(_ context.Context, max int, _ int32) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.items) {
		max = len(q.items)
	}
	return append([]queue.Message(nil), q.items[:max]...), nil
}

func (q *memQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.items {
		if m.ReceiptHandle == receiptHandle {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.deleted = append(q.deleted, receiptHandle)
			return nil
		}
	}
	return nil
}

func (q *memQueue) tokens() []types.RetryToken {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []types.RetryToken
	for _, m := range q.items {
		var tok types.RetryToken
		_ = json.Unmarshal([]byte(m.Body), &tok)
		out = append(out, tok)
	}
	return out
}
