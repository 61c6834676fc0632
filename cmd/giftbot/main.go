package main

import (
	"log"

	"github.com/m3rciful/giftbot/app"
	"github.com/m3rciful/giftbot/core/buildinfo"
	corecmd "github.com/m3rciful/giftbot/core/cmd"
)

func main() {
	log.Printf("giftbot %s (%s)", buildinfo.Version, buildinfo.Commit)

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.Load(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			appCfg, ok := cfg.(*app.Config)
			if !ok {
				log.Fatalf("unexpected config type %T", cfg)
			}
			return app.New(appCfg)
		},
	})
	if err != nil {
		log.Fatalf("giftbot exited: %v", err)
	}
}
