package config

// -----------------------------------------------------------------------------
// Embedded default profiles, one per transport.
// Key: profile name passed to Load / Default
// Val: YAML for that profile
// -----------------------------------------------------------------------------

const cfgRails = `
rails:
  - name: TSP_CORE
    page: 0
    all_ones_quirk: true
  - name: TSP_C2C
    page: 1
`

const cfgAdapter = `
transport:
  kind: adapter
  adapter:
    bus: ""
    speed_khz: 400
device:
  address: 0x5C
  extended_settle: 50ms
  verify_delay: 2s
  die_temp_mode: calibrated
  envelope: {min: 0.3, max: 3.3}
loop:
  interval: 100ms
  duration: 2m
  max_errors: 10
  progress_every: 50
  phases: true
  loop_phases: true
sinks:
  csv_dir: data
  redis: {hash: powertool, channel: powertool}
` + cfgRails

const cfgSerial = `
transport:
  kind: serial
  serial:
    port: /dev/ttyACM0
    baud: 115200
    read_timeout: 2s
device:
  address: 0x5C
  verify_delay: 2s
  die_temp_mode: linear
  envelope: {min: 0.3, max: 3.3}
loop:
  interval: 1s
  duration: 2m
  max_errors: 10
  progress_every: 10
sinks:
  csv_dir: data
  redis: {hash: powertool, channel: powertool}
` + cfgRails

const cfgPCIe = `
transport:
  kind: pcie
  pcie:
    tool: ./i2ctool
    device: "0000:c1:00.0"
    bus: 1
    timeout: 5s
    json_path: /tmp/i2c_read.json
device:
  address: 0x5C
  page_settle: 10ms
  write_settle: 10ms
  verify_delay: 2s
  die_temp_mode: calibrated
  envelope: {min: 0.3, max: 3.3}
loop:
  interval: 500ms
  duration: 2m
  max_errors: 10
  progress_every: 20
sinks:
  csv_dir: data
  redis: {hash: powertool, channel: powertool}
` + cfgRails

var embeddedConfigs = map[string][]byte{
	TransportAdapter: []byte(cfgAdapter),
	TransportSerial:  []byte(cfgSerial),
	TransportPCIe:    []byte(cfgPCIe),
}

// Profiles lists the embedded profile names.
func Profiles() []string { return []string{TransportAdapter, TransportSerial, TransportPCIe} }
