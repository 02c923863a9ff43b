package station

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeHashId derives a station's stable identity hash from its station id
// plus the vendor/model/serial fields a real BootNotification would carry.
// The hash is recomputed whenever the template changes; if the
// result differs from a persisted configuration file's hash, that file is
// discarded and configuration is re-derived from the template.
func ComputeHashId(stationId, vendor, model, serial, chargeBoxSerial string) string {
	h := sha256.New()
	for _, part := range []string{stationId, vendor, model, serial, chargeBoxSerial} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HashId computes the station's identity hash from its own template fields.
func (t *Template) HashId() string {
	return ComputeHashId(
		strings.TrimSpace(t.StationId),
		strings.TrimSpace(t.ChargePointVendor),
		strings.TrimSpace(t.ChargePointModel),
		strings.TrimSpace(t.ChargePointSerialNumber),
		strings.TrimSpace(t.ChargeBoxSerialNumber),
	)
}
