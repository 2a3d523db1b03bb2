package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tiiuae/mission_link/internal/config"
	"github.com/tiiuae/mission_link/internal/gcs"
	"github.com/tiiuae/mission_link/internal/link"
	"github.com/tiiuae/mission_link/internal/mission"
	"github.com/tiiuae/mission_link/internal/telemetry"
)

var (
	defaultFlagSet = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath     = defaultFlagSet.String("config", "", "Path to the yaml config file")
	deviceID       = defaultFlagSet.String("device_id", "", "The provisioned device id")
	planPath       = defaultFlagSet.String("plan", "", "QGC plan file to upload on startup")
)

func main() {
	defaultFlagSet.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}
	if *deviceID != "" {
		cfg.MQTT.DeviceID = *deviceID
	}

	if cfg.Log.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
	}

	// attach sigint & sigterm listeners
	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)

	ctx, quitFunc := context.WithCancel(context.Background())

	// wait group will make sure all goroutines have time to clean up
	var wg sync.WaitGroup

	l, err := openLink(cfg.Link)
	if err != nil {
		log.Fatalf("Could not open link: %v", err)
	}

	sys := gcs.New(cfg, l, nil)
	sys.Run(ctx, &wg)

	engine := mission.NewEngine(sys, mission.Settings{
		RetryTimeout:   cfg.RetryTimeout,
		ProcessTimeout: cfg.ProcessTimeout,
		MaxRetries:     cfg.MaxRetries,
	})
	defer engine.Close()

	if cfg.MQTT.BrokerAddress != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTT.BrokerAddress).
			SetClientID(cfg.MQTT.DeviceID)
		client := mqtt.NewClient(opts)
		if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
			log.Fatalf("Could not connect to MQTT broker: %v", tok.Error())
		}
		defer client.Disconnect(250)

		pub := telemetry.NewPublisher(client, cfg.MQTT.DeviceID)
		engine.SubscribeProgress(pub.HandleProgress)
	}

	if *planPath != "" {
		items, result := mission.ImportQGCPlan(*planPath)
		if result != mission.ResultSuccess {
			log.Fatalf("Could not import plan: %v", result)
		}
		log.Printf("Uploading %d mission items from %s", len(items), *planPath)
		engine.UploadMissionAsync(items, func(result mission.Result) {
			log.Printf("Mission upload finished: %v", result)
		})
	}

	// wait for termination and close quit to signal all
	<-terminationSignals
	log.Printf("Shutting down..")
	quitFunc()

	log.Printf("Waiting for routines to finish...")
	wg.Wait()
	log.Printf("Signing off - BYE")
}

func openLink(cfg config.Link) (link.Link, error) {
	switch cfg.Type {
	case "serial":
		return link.DialSerial(cfg.Device, cfg.Baud)
	case "udp-listen":
		return link.ListenUDP(cfg.Address)
	default:
		return link.DialUDP(cfg.Address)
	}
}
