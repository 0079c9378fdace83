package main

import (
	"flag"
	"log"
	"os"

	"stm32drive/host/config"
	"stm32drive/host/drive"
	"stm32drive/host/serial"
	"stm32drive/protocol"
)

var (
	configPath = flag.String("config", "", "YAML config file (serial port and driver setup)")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config)")
	verbose    = flag.Bool("verbose", false, "Log every command sent")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var cfg config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfg.Serial.Device = "/dev/ttyACM0"
		cfg.Serial.Baud = serial.DefaultBaud
		cfg.Serial.ReadTimeout = serial.DefaultReadTimeout
		cfg.Serial.CommandTimeout = protocol.DefaultTimeout
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud > 0 {
		cfg.Serial.Baud = *baud
	}

	log.Printf("connecting to %s at %d baud", cfg.Serial.Device, cfg.Serial.Baud)
	ctl, err := drive.Connect(cfg.Serial.SerialPort(), cfg.Serial.CommandTimeout)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer ctl.Close()

	dict, err := ctl.RetrieveDictionary()
	if err != nil {
		log.Fatalf("dictionary: %v", err)
	}
	if err := dict.Check(); err != nil {
		log.Fatalf("dictionary: %v", err)
	}
	log.Printf("board speaks protocol %s, %d commands", dict.Version, len(dict.Commands))

	if *configPath != "" {
		if err := ctl.Apply(cfg.Driver); err != nil {
			log.Fatalf("driver setup: %v", err)
		}
		log.Printf("driver ready on tim%d", cfg.Driver.Timer)
	}

	sh := &shell{ctl: ctl, out: os.Stdout, verbose: *verbose}
	if err := sh.run(os.Stdin); err != nil {
		log.Fatalf("input: %v", err)
	}
}
