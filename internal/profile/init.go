package profile

import "fmt"

// InitProfile returns a commented YAML starter template for a new profile.
func InitProfile(name string) string {
	return fmt.Sprintf(`name: %s
description: Custom access context

# Environment of the login: where and on which network.
environment:
  location: home
  network_type: wifi
  public_wifi: false
  vpn_enabled: false

# Device capabilities read by the factor providers.
device:
  camera: standard
  fingerprint_sensor: basic
  timezone: UTC
  battery_status: charging
  battery_percentage: 80
  screen_frame_resolution: 1920x1080
  network_flow_statistics:
    inbound_bandwidth: 100Mbps

# User context. last_login_time drives the Intrusiveness ceiling.
context:
  consent: true
  recent_failed_attempts: 0
  security_rating: normal
  # last_login_time: "2024-01-01T00:00:00Z"

# Policy additions applied whenever this profile is used.
# policy:
#   rules:
#     - name: %s-strict
#       condition: "Security >= 8"
#       constraints:
#         Accuracy: ">= 8"
#   combinations:
#     excludes:
#       - {a: geolocation, b: ip_address}
`, name, name)
}
