package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lake-guardian/lake-rise-research-cli/internal/notification"
	"github.com/lake-guardian/lake-rise-research-cli/internal/pipeline"
	"go.uber.org/zap"
)

func printBanner() {
	figure1 := figure.NewFigure("Lake", "isometric1", true)
	figure2 := figure.NewFigure("Rise", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

func main() {
	stage := flag.String("stage", "all", "pipeline stage to run: download | mndwi | extent | predict | all")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			fmt.Printf("\033[33mNo .env file found, relying on the environment.\033[0m\n")
		}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	godal.RegisterAll()
	printBanner()

	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
			stack := debug.Stack()
			errMessage := fmt.Sprintf("Lake Rise CLI panic during stage %q:\n\n%v\n\nStack trace:\n%s", *stage, r, stack)
			if err := notification.SendDiscordErrorNotification(errMessage); err != nil {
				fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
			}
			os.Exit(1)
		}
	}()

	if err := runStage(*stage); err != nil {
		zap.S().Errorf("stage %s failed: %v", *stage, err)
		errMessage := fmt.Sprintf("Lake Rise CLI\n\nStage %q failed: %s", *stage, err.Error())
		if err := notification.SendDiscordErrorNotification(errMessage); err != nil {
			zap.S().Warnf("failed to send notification: %v", err)
		}
		os.Exit(1)
	}

	successMessage := fmt.Sprintf("Lake Rise CLI\n\nStage %q completed successfully.", *stage)
	if err := notification.SendDiscordSuccessNotification(successMessage); err != nil {
		zap.S().Warnf("failed to send notification: %v", err)
	}
}

func runStage(stage string) error {
	ctx := context.Background()
	p := pipeline.New()

	switch stage {
	case "download":
		return p.RunDownload(ctx)
	case "mndwi":
		return p.RunMNDWI()
	case "extent":
		return p.RunExtent()
	case "predict":
		return p.RunPredict()
	case "all":
		return p.RunAll(ctx)
	default:
		return fmt.Errorf("unknown stage %q, expected download | mndwi | extent | predict | all", stage)
	}
}
