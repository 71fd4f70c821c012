package registry

import (
	"sort"
	"sync"

	"github.com/vitalwatch/monitor/internal/client"
)

// Patients is the read-only patient directory.
type Patients struct {
	mu       sync.RWMutex
	patients []client.Patient
}

// NewPatients creates an empty patient directory.
func NewPatients() *Patients {
	return &Patients{}
}

func (d *Patients) Replace(patients []client.Patient) {
	sorted := make([]client.Patient, len(patients))
	copy(sorted, patients)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	d.mu.Lock()
	d.patients = sorted
	d.mu.Unlock()
}

func (d *Patients) List() []client.Patient {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]client.Patient, len(d.patients))
	copy(out, d.patients)
	return out
}

func (d *Patients) Get(id int) (client.Patient, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.patients {
		if p.ID == id {
			return p, true
		}
	}
	return client.Patient{}, false
}

// Stats holds the last dashboard stats snapshot.
type Stats struct {
	mu    sync.RWMutex
	stats *client.DashboardStats
}

// NewStats creates an empty stats box.
func NewStats() *Stats {
	return &Stats{}
}

// Replace stores a copy of s. A nil s clears the board.
func (b *Stats) Replace(s *client.DashboardStats) {
	var cp *client.DashboardStats
	if s != nil {
		v := *s
		cp = &v
	}
	b.mu.Lock()
	b.stats = cp
	b.mu.Unlock()
}

// Get returns the stats and whether any have been received.
func (b *Stats) Get() (client.DashboardStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stats == nil {
		return client.DashboardStats{}, false
	}
	return *b.stats, true
}
