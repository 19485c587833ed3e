// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/metanode/bpci-core/encoding"
	"github.com/metanode/bpci-core/metrics"
	"github.com/metanode/bpci-core/utils/wrappers"
)

// ErrDiversityPolicyViolation is returned by AddWithDiversity when a
// concentration limit blocks the add.
var ErrDiversityPolicyViolation = errors.New("validator: diversity policy violation")

// Region is a coarse geographic bucket for diversity accounting.
type Region string

const (
	RegionUS     Region = "US"
	RegionEU     Region = "EU"
	RegionJP     Region = "JP"
	RegionGlobal Region = "Global"
)

// regionTag is the fixed single-byte tag a region folds into the
// diversity commitment hash (spec's region_tag field), rather than its
// variable-length name. Unrecognized regions fold in as 0xFF so the
// commitment still changes when novel region values show up.
func regionTag(r Region) byte {
	switch r {
	case RegionUS:
		return 0x01
	case RegionEU:
		return 0x02
	case RegionJP:
		return 0x03
	case RegionGlobal:
		return 0x04
	default:
		return 0xFF
	}
}

// ClientType categorizes the operator behind a validator for
// concentration accounting.
type ClientType int

const (
	Unknown ClientType = iota
	Individual
	Institutional
	Pool
	Exchange
)

// DiversityInfo is the per-validator diversity record tracked alongside
// its Leaf.
type DiversityInfo struct {
	ASN        uint32
	Region     Region
	ClientType ClientType
	IP         string
}

// ViolationKind enumerates the diversity-policy violation taxonomy.
type ViolationKind int

const (
	AsnConcentration ViolationKind = iota
	RegionConcentration
	ClientTypeConcentration
	InsufficientDiversity
	InvalidValidatorInfo
)

// Violation is a single append-only log entry recording a rejected
// mutation or a detected policy shortfall.
type Violation struct {
	Kind      ViolationKind
	Index     uint32
	Detail    string
	Timestamp int64
}

// PolicyConfig holds the concentration and minimum-diversity limits.
type PolicyConfig struct {
	MaxPerASN           int
	MaxPerRegion        int
	MaxPerClientType    int
	MinGeographicRegion int
}

// DefaultPolicyConfig matches the defaults spec.md §4.3 names.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxPerASN:           3,
		MaxPerRegion:        10,
		MaxPerClientType:    20,
		MinGeographicRegion: 3,
	}
}

// Directory wraps a Set with ASN/region/client-type concentration
// limits and a minimum-diversity floor, committing its policy snapshot
// into the hash it exposes alongside set membership.
type Directory struct {
	mu         sync.Mutex
	set        *Set
	cfg        PolicyConfig
	diversity  map[uint32]DiversityInfo
	asnCount   map[uint32]int
	regionCnt  map[Region]int
	clientCnt  map[ClientType]int
	violations []Violation
	m          *metrics.Validators
}

// NewDirectory wraps set with the given policy configuration. m may be
// nil, in which case diversity accounting runs without Prometheus
// observation.
func NewDirectory(set *Set, cfg PolicyConfig, m *metrics.Validators) *Directory {
	return &Directory{
		set:       set,
		cfg:       cfg,
		diversity: make(map[uint32]DiversityInfo),
		asnCount:  make(map[uint32]int),
		regionCnt: make(map[Region]int),
		clientCnt: make(map[ClientType]int),
		m:         m,
	}
}

// AddWithDiversity attempts to add leaf together with its diversity
// record. The add is refused (and a Violation logged) if accepting it
// would push any concentration count to or past its configured limit.
// The directory's counts and hash are untouched on rejection.
func (d *Directory) AddWithDiversity(leaf Leaf, info DiversityInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.asnCount[info.ASN] >= d.cfg.MaxPerASN {
		d.logLocked(AsnConcentration, leaf.Index, "asn concentration limit reached")
		return ErrDiversityPolicyViolation
	}
	if d.regionCnt[info.Region] >= d.cfg.MaxPerRegion {
		d.logLocked(RegionConcentration, leaf.Index, "region concentration limit reached")
		return ErrDiversityPolicyViolation
	}
	if d.clientCnt[info.ClientType] >= d.cfg.MaxPerClientType {
		d.logLocked(ClientTypeConcentration, leaf.Index, "client-type concentration limit reached")
		return ErrDiversityPolicyViolation
	}

	if err := d.set.Add(leaf); err != nil {
		d.logLocked(InvalidValidatorInfo, leaf.Index, err.Error())
		return err
	}
	d.diversity[leaf.Index] = info
	d.asnCount[info.ASN]++
	d.regionCnt[info.Region]++
	d.clientCnt[info.ClientType]++
	if d.m != nil {
		d.m.ActiveValidators.Set(float64(len(d.diversity)))
	}
	return nil
}

// Entry pairs a leaf with its diversity record for batch onboarding,
// e.g. when restoring a directory from a persisted per-epoch snapshot.
type Entry struct {
	Leaf      Leaf
	Diversity DiversityInfo
}

// AddBatch adds every entry, continuing past individual failures rather
// than aborting the whole batch on the first rejected leaf. It returns
// a single aggregated error naming every entry that failed to add, or
// nil if the whole batch succeeded.
func (d *Directory) AddBatch(entries []Entry) error {
	var errs wrappers.Errs
	for _, e := range entries {
		if err := d.AddWithDiversity(e.Leaf, e.Diversity); err != nil {
			errs.Add(err)
		}
	}
	return errs.Err()
}

// Remove removes the validator at index along with its diversity
// bookkeeping.
func (d *Directory) Remove(index uint32) (Leaf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	leaf, err := d.set.Remove(index)
	if err != nil {
		return Leaf{}, err
	}
	if info, ok := d.diversity[index]; ok {
		d.asnCount[info.ASN]--
		d.regionCnt[info.Region]--
		d.clientCnt[info.ClientType]--
		delete(d.diversity, index)
		if d.m != nil {
			d.m.ActiveValidators.Set(float64(len(d.diversity)))
		}
	}
	return leaf, nil
}

func (d *Directory) logLocked(kind ViolationKind, index uint32, detail string) {
	d.violations = append(d.violations, Violation{
		Kind:      kind,
		Index:     index,
		Detail:    detail,
		Timestamp: time.Now().UnixMicro(),
	})
	if d.m != nil {
		d.m.PolicyViolationsTotal.Inc()
	}
}

// CheckDiversityPolicy reports InsufficientDiversity if the number of
// distinct regions represented falls below MinGeographicRegion. The
// check only logs; it never mutates set membership.
func (d *Directory) CheckDiversityPolicy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	distinct := 0
	for _, count := range d.regionCnt {
		if count > 0 {
			distinct++
		}
	}
	if distinct < d.cfg.MinGeographicRegion {
		d.logLocked(InsufficientDiversity, 0, "fewer distinct regions than the configured floor")
		return false
	}
	return true
}

// Violations returns a copy of the append-only violation log.
func (d *Directory) Violations() []Violation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Violation, len(d.violations))
	copy(out, d.violations)
	return out
}

// GetValidatorSetHash commits the set's Merkle root together with the
// ASN/region counts and the violation count under a distinct domain
// tag, so diversity policy state changes the exposed hash even when
// set membership itself has not. The commitment's own field layout
// (asn_be/count_be/region_tag, all big-endian) follows spec's formula
// verbatim rather than encoding.Writer's little-endian canonical
// contract used everywhere else in this tree; this is the one record
// the wire-format contract deliberately does not cover.
func (d *Directory) GetValidatorSetHash() encoding.Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hashLocked()
}

func (d *Directory) hashLocked() encoding.Hash {
	setRoot := d.set.Hash()

	asns := make([]uint32, 0, len(d.asnCount))
	for asn, count := range d.asnCount {
		if count > 0 {
			asns = append(asns, asn)
		}
	}
	sort.Slice(asns, func(i, j int) bool { return asns[i] < asns[j] })

	regions := make([]Region, 0, len(d.regionCnt))
	for r, count := range d.regionCnt {
		if count > 0 {
			regions = append(regions, r)
		}
	}
	sort.Slice(regions, func(i, j int) bool { return regionTag(regions[i]) < regionTag(regions[j]) })

	buf := make([]byte, 0, encoding.HashSize+len(asns)*8+len(regions)*5+4)
	buf = append(buf, setRoot[:]...)

	var be4 [4]byte
	for _, asn := range asns {
		binary.BigEndian.PutUint32(be4[:], asn)
		buf = append(buf, be4[:]...)
		binary.BigEndian.PutUint32(be4[:], uint32(d.asnCount[asn]))
		buf = append(buf, be4[:]...)
	}
	for _, r := range regions {
		buf = append(buf, regionTag(r))
		binary.BigEndian.PutUint32(be4[:], uint32(d.regionCnt[r]))
		buf = append(buf, be4[:]...)
	}
	binary.BigEndian.PutUint32(be4[:], uint32(len(d.violations)))
	buf = append(buf, be4[:]...)

	return encoding.DomainHash(encoding.TagDiversityCommitment, buf)
}
