package bmsagent

import (
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/autopeer-io/autopeer-bms/pkg/log"
)

const deviceIDEnv = "CPEER_BMS_DEVICE_ID"

// deviceIDFile is written by the provisioning service of the gateway.
var deviceIDFile = "/etc/autopeer/device-id"

var hostname = os.Hostname

// DiscoverDeviceID looks up the identity the agent publishes under, in order:
// the CPEER_BMS_DEVICE_ID environment variable, the provisioning file and the
// host name. A random identity is generated as a last resort.
func DiscoverDeviceID() string {
	if id := strings.TrimSpace(os.Getenv(deviceIDEnv)); id != "" {
		log.Info("DeviceID detected from env", "id", id)
		return id
	}

	if content, err := os.ReadFile(deviceIDFile); err == nil {
		if id := strings.TrimSpace(string(content)); id != "" {
			log.Info("DeviceID detected from file", "id", id, "path", deviceIDFile)
			return id
		}
	}

	if name, err := hostname(); err == nil && name != "" && name != "localhost" {
		log.Info("DeviceID derived from hostname", "id", name)
		return name
	}

	id := "bms-" + uuid.NewString()[:8]
	log.Warn("No DeviceID provisioned, using a random one", "id", id)
	return id
}
