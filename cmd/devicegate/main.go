// devicegate — device-authenticity access gate for a single-owner
// dashboard. Fingerprints clients, rejects emulators, VMs, and spoofed
// clones, and restricts mutating operations to the one registered
// device.
package main

import "github.com/soloport/devicegate/internal/cli"

func main() {
	cli.Execute()
}
