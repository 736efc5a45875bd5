package feed

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"screeningcomms/internal/mesh"
	"screeningcomms/internal/types"
)

// memStore is an in-memory stand-in for the clinic and appointment tables.
type memStore struct {
	clinics      map[string]*types.Clinic // bso|code
	appointments map[string]*types.Appointment
}

func newMemStore() *memStore {
	return &memStore{clinics: map[string]*types.Clinic{}, appointments: map[string]*types.Appointment{}}
}

func (s *memStore) Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	return fn(ctx, Repos{Clinics: s, Appointments: s})
}

func (s *memStore) GetOrCreate(_ context.Context, c *types.Clinic) (bool, error) {
	key := c.BSOCode + "|" + c.Code
	if existing, ok := s.clinics[key]; ok {
		c.ID = existing.ID
		return false, nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	s.clinics[key] = &cp
	return true, nil
}

func (s *memStore) SeedLocation(_ context.Context, c *types.Clinic) (bool, error) {
	key := c.BSOCode + "|" + c.Code
	if existing, ok := s.clinics[key]; ok {
		existing.LocationDescription = c.LocationDescription
		existing.LocationURL = c.LocationURL
		c.ID = existing.ID
		return false, nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	s.clinics[key] = &cp
	return true, nil
}

func (s *memStore) GetByNBSSID(_ context.Context, nbssID string) (*types.Appointment, error) {
	a, ok := s.appointments[nbssID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundAppointment, "appointment not found", nil)
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) Create(_ context.Context, a *types.Appointment) (bool, error) {
	if _, ok := s.appointments[a.NBSSID]; ok {
		return false, nil
	}
	a.ID = uuid.NewString()
	cp := *a
	s.appointments[a.NBSSID] = &cp
	return true, nil
}

func (s *memStore) byID(id string) *types.Appointment {
	for _, a := range s.appointments {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *memStore) MarkCancelled(_ context.Context, id, by string, at time.Time) (bool, error) {
	a := s.byID(id)
	if a == nil || a.Status != types.AppointmentBooked {
		return false, nil
	}
	a.Status = types.AppointmentCancelled
	a.CancelledBy = by
	a.CancelledAt = &at
	return true, nil
}

func (s *memStore) MarkCompleted(_ context.Context, id string, status types.AppointmentStatus, by string, at time.Time, ans string) (bool, error) {
	a := s.byID(id)
	if a == nil || a.Status != types.AppointmentBooked {
		return false, nil
	}
	a.Status = status
	a.CompletedBy = by
	a.CompletedAt = &at
	a.AttendedNotScreened = ans
	return true, nil
}

// memBlobs is an in-memory container.
type memBlobs struct {
	objects map[string][]byte
	putErr  map[string]error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, putErr: map[string]error{}}
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	if err := b.putErr[key]; err != nil {
		return err
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (b *memBlobs) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// fakeMailbox serves messages from a map.
type fakeMailbox struct {
	messages     map[string]*mesh.Message
	order        []string
	acked        []string
	retrieved    []string
	handshakeErr error
}

func (m *fakeMailbox) Handshake(context.Context) error { return m.handshakeErr }

func (m *fakeMailbox) ListMessages(context.Context) ([]string, error) { return m.order, nil }

func (m *fakeMailbox) RetrieveMessage(_ context.Context, id string) (*mesh.Message, error) {
	m.retrieved = append(m.retrieved, id)
	msg, ok := m.messages[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeUpstreamMailbox, "gone", nil)
	}
	return msg, nil
}

func (m *fakeMailbox) Acknowledge(_ context.Context, id string) error {
	m.acked = append(m.acked, id)
	return nil
}
