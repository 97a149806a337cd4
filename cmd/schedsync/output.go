package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

func printSuccess(format string, args ...interface{}) {
	color.Green(format, args...)
}

func printInfo(format string, args ...interface{}) {
	color.Cyan(format, args...)
}

func printWarning(format string, args ...interface{}) {
	color.Yellow(format, args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("Failed to encode JSON: %v", err)
		return
	}
	fmt.Println(string(data))
}
