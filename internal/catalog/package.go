package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
)

// Channel identifies one release line with its own cadence and update
// semantics.
type Channel string

const (
	ChannelDaily    Channel = "daily"
	ChannelBranched Channel = "branched"
	ChannelStable   Channel = "stable"
	ChannelLTS      Channel = "lts"
	ChannelArchived Channel = "archived"
)

// Channels returns all release channels in canonical order.
func Channels() []Channel {
	return []Channel{ChannelDaily, ChannelBranched, ChannelStable, ChannelLTS, ChannelArchived}
}

// UpdateChannels returns the channels that participate in update checking
// and update counting. Archived builds are tracked but never counted as
// updates.
func UpdateChannels() []Channel {
	return []Channel{ChannelDaily, ChannelBranched, ChannelStable, ChannelLTS}
}

// ParseChannel converts a user-supplied channel name
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return ChannelDaily, nil
	case "branched":
		return ChannelBranched, nil
	case "stable":
		return ChannelStable, nil
	case "lts":
		return ChannelLTS, nil
	case "archived":
		return ChannelArchived, nil
	}
	return "", fmt.Errorf("unknown channel %q (expected daily, branched, stable, lts or archived)", s)
}

// Build identifies one build line: the channel plus, for daily and branched
// builds, the variant name distinguishing parallel lines.
type Build struct {
	Channel Channel `json:"channel"`
	Variant string  `json:"variant,omitempty"`
}

func (b Build) String() string {
	if b.Variant != "" {
		return fmt.Sprintf("%s (%s)", b.Channel, b.Variant)
	}
	return string(b.Channel)
}

// Slug returns a filesystem-safe token for the build line
func (b Build) Slug() string {
	if b.Variant != "" {
		return sanitize(string(b.Channel) + "-" + b.Variant)
	}
	return string(b.Channel)
}

// Status tags how a catalog entry relates to the locally installed set.
type Status string

const (
	// StatusNew marks a package not previously seen locally.
	StatusNew Status = "new"
	// StatusUpdate marks a package newer than an installed build of the
	// same build line.
	StatusUpdate Status = "update"
	// StatusOld marks everything else.
	StatusOld Status = "old"
)

// Package identifies one downloadable or installed build.
type Package struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Date    time.Time `json:"date"`
	Build   Build     `json:"build"`
	URL     string    `json:"url"`
	Status  Status    `json:"status"`
	State   State     `json:"state"`
}

// Same reports whether two packages are the same logical package. Identity
// is the (name, build, version, date) tuple; status and state never
// participate.
func (p Package) Same(o Package) bool {
	return p.Name == o.Name &&
		p.Build == o.Build &&
		p.Version == o.Version &&
		p.Date.Equal(o.Date)
}

// Key returns a stable string form of the package identity, suitable for
// map keys and directory names.
func (p Package) Key() string {
	return fmt.Sprintf("%s:%s:%s:%d", p.Build.Slug(), p.Name, p.Version, p.Date.Unix())
}

// InstallDirName returns the directory name used for this package under the
// install root. Identities sharing a name but differing in build, version
// or date map to distinct directories.
func (p Package) InstallDirName() string {
	return sanitize(fmt.Sprintf("%s-%s-%s-%s",
		p.Name, p.Build.Slug(), p.Version, p.Date.UTC().Format("20060102-150405")))
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// CompareVersions orders version strings with numeric-aware collation, so
// "2.9" sorts before "2.90". Strings the version parser accepts are
// compared structurally; everything else falls back to a natural-order
// comparison of the raw strings.
func CompareVersions(a, b string) int {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return compareNatural(a, b)
}

// compareNatural compares strings case-insensitively, treating runs of
// digits as numbers rather than characters.
func compareNatural(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	i, j := 0, 0
	for i < len(la) && j < len(lb) {
		ca, cb := la[i], lb[j]
		if isDigit(ca) && isDigit(cb) {
			si, sj := i, j
			for i < len(la) && isDigit(la[i]) {
				i++
			}
			for j < len(lb) && isDigit(lb[j]) {
				j++
			}
			na := strings.TrimLeft(la[si:i], "0")
			nb := strings.TrimLeft(lb[sj:j], "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if na != nb {
				return strings.Compare(na, nb)
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case i < len(la):
		return 1
	case j < len(lb):
		return -1
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// SortMode selects the ordering for user-facing listings.
type SortMode string

const (
	SortVersionAsc  SortMode = "version-asc"
	SortVersionDesc SortMode = "version-desc"
	SortDateAsc     SortMode = "date-asc"
	SortDateDesc    SortMode = "date-desc"
)

// ParseSortMode converts a user-supplied sort name
func ParseSortMode(s string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "version", "version-asc":
		return SortVersionAsc, nil
	case "version-desc":
		return SortVersionDesc, nil
	case "date", "date-asc":
		return SortDateAsc, nil
	case "", "date-desc":
		return SortDateDesc, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// SortPackages orders pkgs in place. Version sorts break ties by date so
// identical version strings from different build lines keep a stable,
// recency-based order.
func SortPackages(pkgs []Package, mode SortMode) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		a, b := pkgs[i], pkgs[j]
		switch mode {
		case SortVersionAsc:
			if c := CompareVersions(a.Version, b.Version); c != 0 {
				return c < 0
			}
			return a.Date.Before(b.Date)
		case SortVersionDesc:
			if c := CompareVersions(a.Version, b.Version); c != 0 {
				return c > 0
			}
			return a.Date.After(b.Date)
		case SortDateAsc:
			return a.Date.Before(b.Date)
		default: // SortDateDesc
			return a.Date.After(b.Date)
		}
	})
}
