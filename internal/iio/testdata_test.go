package iio

import (
	"context"
	"testing"
)

const fixtureXML = `<?xml version="1.0" encoding="utf-8"?>
<context name="emu" description="phaser bench">
<context-attribute name="hw_model" value="Analog Devices Phaser" />
<device id="iio:device0" name="ad9361-phy">
 <channel id="altvoltage0" name="RX_LO" type="output">
  <attribute name="frequency" filename="out_altvoltage0_RX_LO_frequency" value="2200000000" />
 </channel>
 <channel id="voltage0" type="input">
  <attribute name="hardwaregain" filename="in_voltage0_hardwaregain" value="71.000000 dB" />
  <attribute name="gain_control_mode" filename="in_voltage0_gain_control_mode" value="manual" />
  <attribute name="gain_control_mode_available" filename="in_voltage_gain_control_mode_available" value="manual fast_attack slow_attack hybrid" />
 </channel>
 <attribute name="calib_mode" value="auto" />
 <attribute name="sampling_frequency_available" value="[2083333 1 61440000]" />
 <debug-attribute name="direct_reg_access" />
</device>
<device id="iio:device1" name="cf-ad9361-lpc">
 <channel id="voltage0" type="input">
  <scan-element index="0" format="le:S12/16&gt;&gt;0" />
 </channel>
 <channel id="voltage1" type="input">
  <scan-element index="1" format="le:S12/16&gt;&gt;0" />
 </channel>
</device>
<device id="iio:device2" name="adar1000" label="BEAM0">
 <channel id="voltage0" type="input">
  <attribute name="phase" value="0" />
 </channel>
 <attribute name="tr_source" value="spi" />
</device>
<device id="iio:device3" name="adar1000" label="BEAM1" />
</context>`

func newEmuContext(t *testing.T) (*Context, *EmuBackend) {
	t.Helper()
	emu, err := NewEmuBackendXML([]byte(fixtureXML))
	if err != nil {
		t.Fatalf("NewEmuBackendXML: %v", err)
	}
	c, err := NewContext(context.Background(), emu)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return c, emu
}
