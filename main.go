package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/irrigation-controller/cmd"
)

func main() {
	app := &cli.App{
		Name:   "irrigation-controller",
		Usage:  "polls the greenhouse sensors, drives the pump and valves and forwards telemetry",
		Action: cmd.IrrigationCommand,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"POLL_INTERVAL"},
				Value:   5 * time.Second,
			},
			&cli.DurationFlag{
				Name:    "reader-timeout",
				EnvVars: []string{"READER_TIMEOUT"},
				Value:   4 * time.Second,
			},
			&cli.StringFlag{
				Name:    "device-config",
				EnvVars: []string{"DEVICE_CONFIG"},
				Usage:   "YAML file naming the devices, defaults to the built-in table",
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "credentials-file",
				EnvVars: []string{"CREDENTIALS_FILE"},
				Value:   "./influxdb-credentials.json",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				EnvVars: []string{"KAFKA_BROKERS"},
			},
			&cli.StringFlag{
				Name:    "kafka-topic",
				EnvVars: []string{"KAFKA_TOPIC"},
				Value:   "irrigation-points",
			},
			&cli.StringFlag{
				Name:    "serialdump-path",
				EnvVars: []string{"SERIALDUMP_PATH"},
				Usage:   "empty disables the mote listener",
				Value:   "tools/serialdump",
			},
			&cli.StringFlag{
				Name:    "serial-device",
				EnvVars: []string{"SERIAL_DEVICE"},
				Value:   "/dev/ttyUSB0",
			},
			&cli.IntFlag{
				Name:    "serial-baud",
				EnvVars: []string{"SERIAL_BAUD"},
				Value:   115200,
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "api-token-hash",
				EnvVars: []string{"API_TOKEN_HASH"},
				Usage:   "bcrypt hash of the bearer token required by actuator endpoints",
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "irrigation-schedule",
				EnvVars: []string{"IRRIGATION_SCHEDULE"},
				Usage:   "cron expression, empty disables scheduled irrigation",
				Value:   "",
			},
			&cli.DurationFlag{
				Name:    "irrigation-duration",
				EnvVars: []string{"IRRIGATION_DURATION"},
				Value:   30 * time.Second,
			},
			&cli.BoolFlag{
				Name:    "simulate",
				EnvVars: []string{"SIMULATE"},
				Value:   false,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
