package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemochat/mnemo/internal/chatcfg"
	"github.com/mnemochat/mnemo/internal/chatlog"
	"github.com/mnemochat/mnemo/internal/config"
	"github.com/mnemochat/mnemo/internal/gateway"
	"github.com/mnemochat/mnemo/internal/logging"
	"github.com/mnemochat/mnemo/internal/memory"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "mnemo - chat assistant with a memory",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway (channels + summary sweep)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config, workspace and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mnemo status",
	RunE:  runStatus,
}

var configFlag string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file path (default ~/.mnemo/config.yaml)")
	rootCmd.AddCommand(gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	logging.Preinit()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config incomplete, run 'mnemo onboard' and set telegram.token: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := configFlag
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(config.DefaultConfig(), cfgPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	if err := os.MkdirAll(config.DataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	writeIfNotExists(filepath.Join(cfg.Workspace, "PERSONA.md"), defaultPersonaMD)

	fmt.Printf("Workspace ready: %s\n", cfg.Workspace)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s and set telegram.token plus llm.api_key\n", cfgPath)
	fmt.Println("  2. Or set MNEMO_TELEGRAM_TOKEN / MNEMO_API_KEY")
	fmt.Println("  3. Run 'mnemo gateway' to go live")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	cfgPath := configFlag
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}
	fmt.Printf("Config: %s\n", cfgPath)
	fmt.Printf("Workspace: %s\n", cfg.Workspace)
	fmt.Printf("Model: %s\n", cfg.LLM.Model)
	fmt.Printf("Base URL: %s\n", cfg.LLM.BaseURL)

	if key := cfg.LLM.APIKey; len(key) > 8 {
		fmt.Printf("API key: %s\n", key[:4]+"..."+key[len(key)-4:])
	} else if key != "" {
		fmt.Println("API key: set")
	} else {
		fmt.Println("API key: not set")
	}
	if cfg.Telegram.Token != "" {
		fmt.Println("Telegram token: set")
	} else {
		fmt.Println("Telegram token: not set")
	}
	fmt.Printf("Allow-listed chats: %d\n", len(cfg.Access.AllowChats))

	dataDir := config.DataDir()
	chats, entries := memory.NewStore(filepath.Join(dataDir, "memories.json")).Stats()
	fmt.Printf("Memories: %d entries in %d chats\n", entries, chats)
	fmt.Printf("Chat API configs: %d\n", chatcfg.NewStore(filepath.Join(dataDir, "chat_config.json")).Count())
	fmt.Printf("Summaries: %d\n", chatlog.NewSummaryStore(filepath.Join(dataDir, "summaries.json")).Count())

	return nil
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultPersonaMD = `# Persona

You are mnemo, a friendly assistant living in a group chat.

- Keep replies short; this is a chat, not an essay.
- Use the save_memory tool when someone asks you to remember something,
  and delete_memory when they ask you to forget it.
- Check the saved memories and the conversation summary before asking for
  information you were already given.
`
