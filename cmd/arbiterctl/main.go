package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/arbiter/pkg/config"
	"github.com/cuemby/arbiter/pkg/engine"
	"github.com/cuemby/arbiter/pkg/log"
	"github.com/cuemby/arbiter/pkg/resourceset"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "arbiterctl",
	Short:   "Drive an in-process arbiter engine from a YAML declaration",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("arbiterctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(dumpCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func loadEngine(configPath string) (*engine.Engine, error) {
	doc, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	eng := engine.New(nil)
	if err := doc.Apply(eng); err != nil {
		return nil, err
	}
	return eng, nil
}

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire a one-shot resource set against a YAML declaration, then release it",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		clientName, _ := cmd.Flags().GetString("client")
		className, _ := cmd.Flags().GetString("class")
		zoneName, _ := cmd.Flags().GetString("zone")
		resources, _ := cmd.Flags().GetStringArray("resource")

		eng, err := loadEngine(configPath)
		if err != nil {
			return err
		}

		if _, err := eng.CreateClient(clientName, nil); err != nil {
			return err
		}
		set, err := eng.CreateSet(clientName, className, zoneName, false, false, printCallback, nil)
		if err != nil {
			return err
		}
		for _, name := range resources {
			if err := eng.AddResource(set, name, false, nil, true); err != nil {
				return err
			}
		}
		if err := eng.Acquire(set.ID, 1); err != nil {
			return err
		}

		fmt.Println(set.String())
		fmt.Print(eng.Registry.Dump())

		return eng.Release(set.ID, 2)
	},
}

func printCallback(set *resourceset.Set, reqID uint32, kind resourceset.CallbackKind) {
	verb := "revoked"
	if kind == resourceset.CallbackGrant {
		verb = "granted"
	}
	fmt.Printf("set %d request %d %s\n", set.ID, reqID, verb)
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Load a YAML declaration and print the (empty) owner tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		eng, err := loadEngine(configPath)
		if err != nil {
			return err
		}
		fmt.Print(eng.Registry.Dump())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{acquireCmd, dumpCmd} {
		c.Flags().String("config", "", "path to the YAML declaration")
		_ = c.MarkFlagRequired("config")
	}
	acquireCmd.Flags().String("client", "cli", "client name to create")
	acquireCmd.Flags().String("class", "", "application class to acquire under")
	acquireCmd.Flags().String("zone", "", "zone to acquire in")
	acquireCmd.Flags().StringArray("resource", nil, "resource to add to the set (repeatable)")
	_ = acquireCmd.MarkFlagRequired("class")
	_ = acquireCmd.MarkFlagRequired("zone")
}
