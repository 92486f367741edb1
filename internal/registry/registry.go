// Package registry keeps the peripherals seen during the current scan and
// ranks them by signal strength.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/radio"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Peripheral is a discovered device.
type Peripheral struct {
	Address          string    `json:"address"`
	Name             string    `json:"name"`
	RSSI             int       `json:"rssi"`
	Connectable      bool      `json:"connectable"`
	Services         []string  `json:"services,omitempty"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	Manufacturer     string    `json:"manufacturer,omitempty"`
	TxPower          *int      `json:"tx_power,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// Sighting classifies the outcome of Upsert.
type Sighting int

const (
	SightingFiltered Sighting = iota
	SightingNew
	SightingUpdated
)

// Filter restricts which advertisements create registry entries.
// Addresses are compared after normalization; services after UUID normalization.
type Filter struct {
	AllowList []string `yaml:"allow_list"`
	BlockList []string `yaml:"block_list"`
	Services  []string `yaml:"services"`
}

// Allows reports whether an advertisement passes the filter.
func (f Filter) Allows(adv radio.Advertisement) bool {
	addr := device.NormalizeAddress(adv.Address)

	for _, blocked := range f.BlockList {
		if device.NormalizeAddress(blocked) == addr {
			return false
		}
	}

	if len(f.AllowList) > 0 && !slices.ContainsFunc(f.AllowList, func(a string) bool {
		return device.NormalizeAddress(a) == addr
	}) {
		return false
	}

	if len(f.Services) > 0 {
		advertised := device.NormalizeUUIDs(adv.Services)
		for _, required := range f.Services {
			if slices.Contains(advertised, device.NormalizeUUID(required)) {
				return true
			}
		}
		return false
	}

	return true
}

// Registry holds peripherals in first-discovery order.
type Registry struct {
	mu          sync.RWMutex
	peripherals *orderedmap.OrderedMap[string, *Peripheral]
	filter      Filter
	logger      *logrus.Logger
	now         func() time.Time
}

// New creates an empty registry.
func New(filter Filter, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		peripherals: orderedmap.New[string, *Peripheral](),
		filter:      filter,
		logger:      logger,
		now:         time.Now,
	}
}

// Upsert records a sighting. RSSI is always refreshed; the name only when the
// advertisement carries one. Filtered advertisements for unknown addresses
// are ignored.
func (r *Registry) Upsert(adv radio.Advertisement) (Peripheral, Sighting) {
	addr := device.NormalizeAddress(adv.Address)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	p, existing := r.peripherals.Get(addr)
	if !existing {
		if !r.filter.Allows(adv) {
			return Peripheral{}, SightingFiltered
		}
		p = &Peripheral{Address: addr, FirstSeen: now}
		r.peripherals.Set(addr, p)
	}

	p.RSSI = adv.RSSI
	p.LastSeen = now
	p.Connectable = adv.Connectable
	if adv.Name != "" {
		p.Name = adv.Name
	}
	if len(adv.Services) > 0 {
		p.Services = device.NormalizeUUIDs(adv.Services)
	}
	if len(adv.ManufacturerData) > 0 {
		p.ManufacturerData = append([]byte(nil), adv.ManufacturerData...)
		if info, err := device.ParseManufacturerData(adv.ManufacturerData); err == nil {
			p.Manufacturer = info.String()
		}
	}
	if adv.TxPower != nil {
		tx := *adv.TxPower
		p.TxPower = &tx
	}

	if existing {
		return *p, SightingUpdated
	}

	r.logger.WithFields(logrus.Fields{
		"address": p.Address,
		"name":    p.Name,
		"rssi":    p.RSSI,
	}).Info("Discovered new device")
	return *p, SightingNew
}

// Get returns the peripheral for an address.
func (r *Registry) Get(address string) (Peripheral, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peripherals.Get(device.NormalizeAddress(address))
	if !ok {
		return Peripheral{}, false
	}
	return *p, true
}

// Len returns the number of known peripherals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peripherals.Len()
}

// Clear forgets every peripheral.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals = orderedmap.New[string, *Peripheral]()
}

// Sorted returns a snapshot ordered by RSSI, strongest first. Equal RSSI
// keeps first-discovery order.
func (r *Registry) Sorted() []Peripheral {
	r.mu.RLock()
	out := make([]Peripheral, 0, r.peripherals.Len())
	for pair := r.peripherals.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RSSI > out[j].RSSI
	})
	return out
}

// At returns the peripheral at a 1-based position of the current ranking.
func (r *Registry) At(index int) (Peripheral, bool) {
	sorted := r.Sorted()
	if index < 1 || index > len(sorted) {
		return Peripheral{}, false
	}
	return sorted[index-1], true
}

// DeviceList renders the ranking as comma-joined "address name rssi" triples.
func (r *Registry) DeviceList() string {
	sorted := r.Sorted()
	entries := make([]string, 0, len(sorted))
	for _, p := range sorted {
		entries = append(entries, fmt.Sprintf("%s %s %d", p.Address, p.Name, p.RSSI))
	}
	return strings.Join(entries, ",")
}
