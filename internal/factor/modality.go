package factor

import (
	"math"

	"github.com/ppiankov/factorwatch/internal/model"
)

// Modality factor names. Modalities rate six attributes on a 0..1 scale,
// adding Utility and Speed; scores are rescaled to 1..10.
const (
	IPContinuity   = "ip_continuity"
	FacialModality = "facial_modality"
)

// modality rates one authentication modality on the unit scale.
type modality interface {
	accuracy() float64
	intrusiveness() float64
	security() float64
	privacy() float64
	utility() float64
	speed() float64
}

type bundles struct {
	env, device, ctx model.Bundle
}

func modalityProvider(build func(b bundles) modality) Provider {
	return ProviderFunc(func(env, device, ctx model.Bundle) (model.Scores, error) {
		m := build(bundles{env: env, device: device, ctx: ctx})
		return model.Scores{
			model.AttrAccuracy:      unitScale(m.accuracy()),
			model.AttrIntrusiveness: unitScale(m.intrusiveness()),
			model.AttrSecurity:      unitScale(m.security()),
			model.AttrPrivacy:       unitScale(m.privacy()),
			model.AttrUtility:       unitScale(m.utility()),
			model.AttrSpeed:         unitScale(m.speed()),
		}, nil
	})
}

// unitScale clamps v to [0, 1] and maps it onto 1..10 at one decimal.
func unitScale(v float64) float64 {
	v = min(max(v, 0), 1)
	return math.Round((1+9*v)*10) / 10
}

// lookup returns table[key], or def when key is not in the table.
func lookup(table map[string]float64, key string, def float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return def
}

type ipContinuity struct{ bundles }

func (m ipContinuity) accuracy() float64 {
	if m.env.Bool("dynamic_ip", true) || m.ctx.Bool("vpn_or_proxy_use", false) {
		return 0.3
	}
	return 0.7
}

// Passive: reuses the address the request already carries.
func (m ipContinuity) intrusiveness() float64 { return 0.1 }

func (m ipContinuity) security() float64 {
	return pick(m.ctx.Bool("network_security_measures", false), 0.7, 0.4)
}

func (m ipContinuity) privacy() float64 {
	return pick(m.ctx.Bool("user_consent", false) && m.device.Bool("data_encryption", false), 0.8, 0.2)
}

func (m ipContinuity) utility() float64 {
	return pick(m.env.String("ip_change_frequency", "high") == "low", 0.8, 0.3)
}

func (m ipContinuity) speed() float64 { return 0.9 }

type facialModality struct{ bundles }

var (
	lightingAccuracy = map[string]float64{"optimal": 0, "bright": -0.05, "dim": -0.10, "dark": -0.20}
	cameraAccuracy   = map[string]float64{"high": 0.05, "medium": 0, "low": -0.05}
	positionAccuracy = map[string]float64{"ideal": 0, "acceptable": -0.05, "poor": -0.10}
	locationIntrude  = map[string]float64{"home": -0.5, "office": 0, "public": 0.5}
	encryptionSecure = map[string]float64{"none": -0.2, "low": -0.1, "high": 0.1}
	connectionSecure = map[string]float64{"low": -0.1, "medium": 0, "high": 0.1}
	encryptionPriv   = map[string]float64{"none": -0.3, "low": -0.1, "high": 0.2}
	storagePriv      = map[string]float64{"local": 0.2, "remote": -0.2}
	reusePriv        = map[string]float64{"low": 0.1, "high": -0.2}
	hardwareTime     = map[string]float64{"standard": 0, "advanced": -0.2}
	efficiencyTime   = map[string]float64{"high": -0.2, "medium": 0, "low": 0.2}
	preprocessTime   = map[string]float64{"none": -0.1, "minimal": 0, "extensive": 0.2}
)

func (m facialModality) accuracy() float64 {
	return 1 - m.device.Float("FRR", 0.05) +
		lookup(lightingAccuracy, m.env.String("lighting", "optimal"), -0.10) +
		lookup(cameraAccuracy, m.device.String("camera_quality", "medium"), 0) +
		lookup(positionAccuracy, m.ctx.String("user_position", "ideal"), -0.05)
}

func (m facialModality) intrusiveness() float64 {
	return 0.8 + lookup(locationIntrude, m.ctx.String("user_location", "private"), 0)
}

func (m facialModality) security() float64 {
	return 0.7 + (1 - m.device.Float("FAR", 0.01)) +
		lookup(encryptionSecure, m.device.String("encryption_level", "none"), 0) +
		lookup(connectionSecure, m.env.String("connection_trust", "low"), 0)
}

func (m facialModality) privacy() float64 {
	return lookup(encryptionPriv, m.device.String("encryption_level", "none"), -0.1) +
		lookup(storagePriv, m.device.String("storage_location", "remote"), -0.2) +
		lookup(reusePriv, m.ctx.String("reuse_potential", "high"), -0.2)
}

func (m facialModality) utility() float64 {
	return pick(m.env.Bool("lighting_adaptability", true), 0.2, -0.2) +
		pick(m.ctx.Bool("demographic_flexibility", true), 0.2, -0.2) +
		pick(m.device.Bool("spoofing_resilience", true), 0.2, -0.2) +
		pick(m.ctx.Bool("ease_of_use", true), 0.2, -0.2)
}

// speed is higher for faster checks: processing-time adjustments are
// subtracted from a neutral 0.6.
func (m facialModality) speed() float64 {
	return 0.6 -
		lookup(hardwareTime, m.device.String("hardware_capability", "standard"), 0) -
		lookup(efficiencyTime, m.device.String("algorithm_efficiency", "medium"), 0) -
		lookup(preprocessTime, m.device.String("preprocessing_requirement", "none"), 0)
}
