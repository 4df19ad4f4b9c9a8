package cfgmem

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/cr/hx870/errs"
)

//go:embed profiles.yaml
var profilesYAML []byte

// Region names one region byte value resolves to, grounded in
// hxtool/memory.py's region_code_map/region_map — richer than the
// single US/non-US bit the engine itself needs, but free to carry.
type Region struct {
	Code byte   `yaml:"code"`
	Name string `yaml:"name"`
	US   bool   `yaml:"us"`
}

// Profile describes one radio model's flash-ID and region conventions,
// grounded in hxtool/device.py's per-model subclasses.
type Profile struct {
	Handle   string   `yaml:"handle"`
	Brand    string   `yaml:"brand"`
	Model    string   `yaml:"model"`
	FlashIDs []string `yaml:"flash_ids"`
	Regions  []Region `yaml:"regions"`
}

// RegionName resolves a region byte to its human-readable name, or "" if
// the profile doesn't recognize it.
func (p Profile) RegionName(code byte) string {
	for _, r := range p.Regions {
		if r.Code == code {
			return r.Name
		}
	}
	return ""
}

// IsUS reports whether the given region byte is the profile's US region.
func (p Profile) IsUS(code byte) bool {
	for _, r := range p.Regions {
		if r.Code == code {
			return r.US
		}
	}
	return code == 0xFF
}

// AcceptsFlashID reports whether id is one of the profile's known flash
// parts, matching hxtool.device.HX870.check_flash_id.
func (p Profile) AcceptsFlashID(id string) bool {
	for _, fid := range p.FlashIDs {
		if fid == id {
			return true
		}
	}
	return false
}

// Profiles is the parsed device model table, loaded once at package init
// from the embedded profiles.yaml.
var Profiles []Profile

func init() {
	if err := yaml.Unmarshal(profilesYAML, &Profiles); err != nil {
		panic(errs.WrapProtocolError(err, "cfgmem: embedded profiles.yaml is malformed"))
	}
}

// ProfileByHandle looks up a profile by its short handle (e.g. "hx870").
func ProfileByHandle(handle string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Handle == handle {
			return p, true
		}
	}
	return Profile{}, false
}
