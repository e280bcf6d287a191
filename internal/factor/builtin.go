package factor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ppiankov/factorwatch/internal/model"
)

// Builtin factor names.
const (
	Password              = "password"
	Fingerprint           = "fingerprint"
	FacialRecognition     = "facial_recognition"
	Geolocation           = "geolocation"
	IPAddress             = "ip_address"
	Timezone              = "timezone"
	BatteryInformation    = "battery_information"
	NetworkFlowStatistics = "network_flow_statistics"
	ScreenFrameResolution = "screen_frame_resolution"
)

// Builtin returns a registry holding the stock factors, scored on a 1..10 scale.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister(Password, ProviderFunc(password))
	r.MustRegister(Fingerprint, ProviderFunc(fingerprint))
	r.MustRegister(FacialRecognition, ProviderFunc(facialRecognition))
	r.MustRegister(Geolocation, ProviderFunc(geolocation))
	r.MustRegister(IPAddress, ProviderFunc(ipAddress))
	r.MustRegister(Timezone, ProviderFunc(timezone))
	r.MustRegister(BatteryInformation, ProviderFunc(batteryInformation))
	r.MustRegister(NetworkFlowStatistics, ProviderFunc(networkFlowStatistics))
	r.MustRegister(ScreenFrameResolution, ProviderFunc(screenFrameResolution))
	r.MustRegister(IPContinuity, modalityProvider(func(b bundles) modality { return ipContinuity{b} }))
	r.MustRegister(FacialModality, modalityProvider(func(b bundles) modality { return facialModality{b} }))
	return r
}

func scores(security, intrusiveness, privacy, accuracy float64) model.Scores {
	return model.Scores{
		model.AttrSecurity:      security,
		model.AttrIntrusiveness: intrusiveness,
		model.AttrPrivacy:       privacy,
		model.AttrAccuracy:      accuracy,
	}
}

func atLeastOne(v float64) float64 { return max(1, v) }

// password carries no Accuracy score, so Accuracy constraints never apply to it.
func password(_, _, _ model.Bundle) (model.Scores, error) {
	return model.Scores{
		model.AttrSecurity:      8,
		model.AttrIntrusiveness: 5,
		model.AttrPrivacy:       6,
	}, nil
}

func consentPrivacy(ctx model.Bundle) float64 {
	if ctx.Bool("consent", false) {
		return 8
	}
	return 4
}

func fingerprint(_, device, ctx model.Bundle) (model.Scores, error) {
	security := 5.0
	if device.String("fingerprint_sensor", "") == "enabled" {
		security = 9
	}
	return scores(security, 2, consentPrivacy(ctx), 7), nil
}

func facialRecognition(_, device, ctx model.Bundle) (model.Scores, error) {
	security := 6.0
	if device.String("camera", "") == "HD" {
		security = 9
	}
	return scores(security, 3, consentPrivacy(ctx), 4), nil
}

func geolocation(env, _, _ model.Bundle) (model.Scores, error) {
	security := 5.0
	if env.String("location", "unknown") == "office" {
		security = 7
	}
	return scores(security, 3, 5, 2), nil
}

func ipAddress(env, device, ctx model.Bundle) (model.Scores, error) {
	security := 6.0
	network := env.String("network_type", "")
	vpn := env.Bool("vpn_enabled", false)
	publicWifi := env.Bool("public_wifi", false)
	alerts := env.Bool("recent_security_alerts", false)

	switch {
	case network == "wired" && !alerts:
		security = pick(vpn, 8, 7)
	case network == "wireless" && !publicWifi:
		security = pick(vpn, 6, 5)
	case publicWifi:
		security = pick(vpn, 4, 3)
	}

	usage := ctx.Map("device_usage")
	lastIP := usage.String("last_login_ip", "")
	if ctx.Float("recent_failed_attempts", 0) > 2 || (lastIP != "" && lastIP == device.String("ip_address", "")) {
		security--
	}

	distinctApps := len(unique(usage.Strings("app_usage")))
	privacy := 4.0
	switch {
	case vpn:
		privacy = 8
	case distinctApps > 2:
		privacy = 5
	}

	return scores(atLeastOne(security), 2, atLeastOne(privacy), 4), nil
}

func timezone(_, device, ctx model.Bundle) (model.Scores, error) {
	security, privacy := 6.0, 5.0
	current := device.String("timezone", "UTC")
	history := ctx.Strings("historical_timezones")
	known := slices.Contains(history, current)

	if ctx.Bool("recent_travel", false) || !known {
		security -= 2
	}
	if ctx.Bool("consent", false) {
		privacy++
	} else {
		privacy--
	}
	if !known {
		privacy++
	}
	accuracy := 6.0
	if len(unique(history)) <= 2 {
		accuracy = 9
	}
	return scores(atLeastOne(security), 2, atLeastOne(privacy), atLeastOne(accuracy)), nil
}

func batteryInformation(_, device, ctx model.Bundle) (model.Scores, error) {
	security, privacy, accuracy := 5.0, 5.0, 7.0
	consent := ctx.Bool("consent", false)

	if device.String("battery_status", "") == "charging" {
		security += 2
		privacy += pick(consent, 1, -1)
	}
	if device.Float("battery_percentage", 100) < 20 {
		security -= 2
		privacy--
	}
	intrusiveness := pick(consent, 2, 3)

	if apps := ctx.Map("device_usage").Strings("app_usage"); len(apps) > 0 {
		accuracy = pick(slices.Contains(apps, "battery_saver"), 9, 7)
	}
	return scores(atLeastOne(security), intrusiveness, atLeastOne(privacy), accuracy), nil
}

func networkFlowStatistics(_, device, ctx model.Bundle) (model.Scores, error) {
	security := 7.0
	flow := device.Map("network_flow_statistics")

	inbound, err := parseBandwidth(flow.String("inbound_bandwidth", "0Mbps"))
	if err != nil {
		return nil, fmt.Errorf("inbound_bandwidth: %w", err)
	}
	loss := flow.Float("packet_loss_rate", 0) / 100
	if inbound < 10 || loss > 0.05 {
		security -= 2
	}
	if ctx.Float("recent_failed_attempts", 0) > 2 {
		security--
	}

	privacy := pick(ctx.Bool("consent", false), 7, 5)
	accuracy := pick(flow.Float("latency_ms", 0) < 50, 8, 6)
	return scores(atLeastOne(security), 3, atLeastOne(privacy), atLeastOne(accuracy)), nil
}

func screenFrameResolution(_, device, ctx model.Bundle) (model.Scores, error) {
	security := 5.0
	resolution := device.String("screen_frame_resolution", "unknown")
	if slices.Contains(ctx.Map("historical_info").Strings("prev_screen_resolutions"), resolution) {
		security = 7
	}
	privacy := pick(ctx.Bool("consent", false), 6, 4)
	apps := ctx.Map("device_usage").Strings("app_usage")
	accuracy := pick(slices.Contains(apps, "screen_brightness_adjustment"), 9, 7)
	return scores(atLeastOne(security), 3, atLeastOne(privacy), accuracy), nil
}

// parseBandwidth reads values such as "12Mbps" or "12.5 Mbps".
func parseBandwidth(s string) (float64, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "Mbps"))
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q", s)
	}
	return v, nil
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

func unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
