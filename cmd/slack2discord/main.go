// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aiku/slack2discord/pkg/discord"
	"github.com/aiku/slack2discord/pkg/export"
	"github.com/aiku/slack2discord/pkg/importer"
	"github.com/aiku/slack2discord/pkg/ledger"
)

var (
	configPath = flag.String("config", "config.yaml", "path to the config file")
	exportPath = flag.String("export", "", "path to the unzipped Slack export directory")
	ledgerPath = flag.String("ledger", "", "path to a SQLite ledger database for resumable runs")
	channels   = flag.String("channels", "", "comma-separated channel names to import (default: all)")
	tokenFile  = flag.String("token-file", "", "file holding the Discord bot token (overrides DISCORD_TOKEN)")
	verbose    = flag.Bool("verbose", false, "enable debug logging")
	trace      = flag.Bool("trace", false, "enable trace logging")
)

func main() {
	flag.Parse()
	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	if *trace {
		level = zerolog.TraceLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}
}

func run(log zerolog.Logger) error {
	if *exportPath == "" {
		return fmt.Errorf("-export is required")
	}
	discordToken, err := discordCredential()
	if err != nil {
		return err
	}
	// Optional: Slack url_private downloads need it on non-public exports.
	slackToken := os.Getenv("SLACK_TOKEN")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.GuildID == "" {
		return fmt.Errorf("guild_id is not set in %s", *configPath)
	}

	archive, err := export.Load(*exportPath, log)
	if err != nil {
		return err
	}

	session, err := discordgo.New("Bot " + discordToken)
	if err != nil {
		return fmt.Errorf("creating Discord session: %w", err)
	}
	// REST only; the gateway is never opened.

	var store importer.Ledger
	if *ledgerPath != "" {
		sqlStore, err := ledger.OpenSQLite(*ledgerPath)
		if err != nil {
			return err
		}
		defer sqlStore.Close()
		store = sqlStore
	} else {
		store = ledger.NewMemory()
	}

	directory := discord.NewDirectory(session, cfg.GuildID, cfg.UserMap, archive.Users, archive.Channels, log)
	resolver := importer.NewResolver(directory, archive.Names(), cfg.AllowBroadcast == "auto", log)
	relocator := importer.NewRelocator(nil, slackToken, cfg.Limits.MaxAttachmentBytes, log)
	transport := discord.NewTransport(session, cfg.GuildID, cfg.CreateChannels, cfg.AllowBroadcast == "auto", log)
	im := importer.New(cfg, transport, resolver, relocator, store, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, name := range selectChannels(archive, *channels) {
		if err := im.ImportChannel(ctx, name, archive.Messages(name)); err != nil {
			return err
		}
	}

	stats := im.Stats()
	log.Info().
		Int("sent", stats.Sent).
		Int("partially_failed", stats.PartiallyFailed).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Msg("Import complete")
	return nil
}

func discordCredential() (string, error) {
	if *tokenFile != "" {
		data, err := os.ReadFile(*tokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("DISCORD_TOKEN is not set and no -token-file given")
}

func loadConfig(path string) (*importer.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg importer.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// selectChannels returns the channels to import in stable order,
// honoring the -channels filter.
func selectChannels(archive *export.Archive, filter string) []string {
	if filter == "" {
		return archive.ChannelNames
	}
	want := map[string]bool{}
	for _, name := range strings.Split(filter, ",") {
		want[strings.TrimSpace(name)] = true
	}
	var out []string
	for _, name := range archive.ChannelNames {
		if want[name] {
			out = append(out, name)
		}
	}
	return out
}
