// Package enocean implements the EnOcean file bridge.
//
// An external receiver process writes each sensor reading into a small
// text file. This package turns those files into named data points:
//
//	┌──────────────┐  files   ┌──────────────────┐  Publish(name, value)  ┌──────────────┐
//	│   receiver   │─────────►│  EnOcean bridge  │───────────────────────►│ point server │
//	│   process    │          │   (this pkg)     │                        │  MQTT, etc.  │
//	└──────────────┘          └──────────────────┘                        └──────────────┘
//	        │  fsnotify / MQTT / SIGUSR1      ▲
//	        └─────────── Notify(index) ───────┘
//
// # Components
//
//   - Load parses the control file into a Registry of ChannelRecords.
//   - EventTable holds one lock-free Empty/Acknowledged/Pending flag per channel.
//   - Cursor walks a channel's value files one call at a time.
//   - Scanner runs the periodic cycle: claim each Pending channel, drain it
//     through a Cursor, publish every sample.
//   - FileNotifier, MQTTNotifier and SignalNotifier mark channels Pending.
//   - ControlWatcher reloads the registry when the control file changes.
//   - Bridge wires the above together and owns reload.
//
// # Control file
//
// One channel per line:
//
//	# id,      profile,  description,  source [, source ...]
//	0017A2B3,  A5-02-05, Outdoor Temp, temp1.txt
//
// Relative sources resolve against the data directory.
//
// # Thread Safety
//
// Notify may be called from any goroutine. Scanner.Cycle and Bridge.Reload
// serialise on the scanner's lock.
package enocean
