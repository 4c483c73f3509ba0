package identity

import "github.com/stlink-tool/stlink-tool/internal/config"

// IdentityEdit carries user edits to the two identity fields that live
// outside the 64-byte on-flash sector: the adapter type byte and the
// reported software version. They travel through the same CLI surface as
// the on-flash config.EditIntent fields but occupy their own flash
// addresses (§4.6) and so are never folded into config.Record's index
// space.
type IdentityEdit struct {
	StLinkType      config.FieldEdit // byte
	SoftwareVersion config.FieldEdit // uint16
}

// NewIdentityEdit returns an IdentityEdit defaulted to Copy, i.e. reuse
// whatever the adapter currently reports.
func NewIdentityEdit() IdentityEdit {
	return IdentityEdit{
		StLinkType:      config.FieldEdit{Action: config.Copy},
		SoftwareVersion: config.FieldEdit{Action: config.Copy},
	}
}

// ResolveSTType returns the st_type byte to flash: the edit's value if
// Add, otherwise the adapter's current type.
func (e IdentityEdit) ResolveSTType(current byte) byte {
	if e.StLinkType.Action == config.Add {
		if v, ok := e.StLinkType.Value.(byte); ok {
			return v
		}
	}
	return current
}

// ResolveSoftwareVersion returns the software version to flash: the
// edit's value if Add, otherwise the adapter's current version.
func (e IdentityEdit) ResolveSoftwareVersion(current uint16) uint16 {
	if e.SoftwareVersion.Action == config.Add {
		if v, ok := e.SoftwareVersion.Value.(uint16); ok {
			return v
		}
	}
	return current
}
