package camera

import (
	"fmt"

	"github.com/tphakala/camcore/internal/errors"
)

// Quality is a recorder resolution tier, ordered from lowest to highest
type Quality int

const (
	QualitySD Quality = iota + 1
	QualityHD
	QualityFHD
)

// String returns the config name of the quality tier
func (q Quality) String() string {
	switch q {
	case QualitySD:
		return "sd"
	case QualityHD:
		return "hd"
	case QualityFHD:
		return "fhd"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

// Size returns the nominal frame size of the tier
func (q Quality) Size() (width, height int) {
	switch q {
	case QualitySD:
		return 720, 480
	case QualityHD:
		return 1280, 720
	case QualityFHD:
		return 1920, 1080
	default:
		return 0, 0
	}
}

// ParseQuality converts a config value into a Quality
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "sd":
		return QualitySD, nil
	case "hd", "":
		return QualityHD, nil
	case "fhd":
		return QualityFHD, nil
	default:
		return 0, errors.Newf("unknown quality %q", s).
			Component(ComponentCamera).
			Category(errors.CategoryValidation).
			Build()
	}
}

// QualitySelector picks a recorder quality: Preferred if supported,
// otherwise the highest supported tier below it that is not lower than Floor.
type QualitySelector struct {
	Preferred Quality
	Floor     Quality
}

// DefaultQualitySelector prefers HD and never falls below SD
func DefaultQualitySelector() QualitySelector {
	return QualitySelector{Preferred: QualityHD, Floor: QualitySD}
}

// Select returns the chosen tier from the supported set
func (qs QualitySelector) Select(supported []Quality) (Quality, bool) {
	var best Quality
	for _, q := range supported {
		if q == qs.Preferred {
			return q, true
		}
		if q < qs.Preferred && q >= qs.Floor && q > best {
			best = q
		}
	}
	return best, best != 0
}
