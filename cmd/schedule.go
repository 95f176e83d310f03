package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evsim/cpsim/config"
	"github.com/evsim/cpsim/core/confkeys"
	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/profile"
	"github.com/evsim/cpsim/core/station"
	"github.com/evsim/cpsim/infra/logger"
)

var (
	scheduleConnector int
	scheduleDuration  int
	scheduleUnit      string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [profile.json...]",
	Short: "Evaluate charging profiles into a composite schedule offline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  evaluateSchedule,
}

func init() {
	scheduleCmd.Flags().IntVar(&scheduleConnector, "connector", 1, "connector to evaluate")
	scheduleCmd.Flags().IntVar(&scheduleDuration, "duration", 3600, "schedule horizon in seconds")
	scheduleCmd.Flags().StringVar(&scheduleUnit, "unit", "", "requested rate unit (W or A)")
	rootCmd.AddCommand(scheduleCmd)
}

func evaluateSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NopLogger{}
	keys := confkeys.New(confkeys.Options{
		HeartbeatInterval: cfg.Station.HeartbeatIntervalSeconds,
		Connectors:        cfg.Station.Connectors,
		MaxPowerW:         cfg.Station.MaxPowerW,
	}, log)
	st := station.New(cfg.Station.Connectors, log)
	store := profile.NewStore(profile.Config{
		Connectors:  cfg.Station.Connectors,
		MaxPowerW:   float64(cfg.Station.MaxPowerW),
		MaxCurrentA: float64(cfg.Station.MaxCurrentA),
	}, keys, st, log)

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read profile: %w", err)
		}
		var req ocpp.SetChargingProfileRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		status := store.SetProfile(req.ConnectorID, req.CsChargingProfiles)
		if status != ocpp.ProfileAccepted {
			return fmt.Errorf("profile %s not accepted: %s", path, status)
		}
	}

	resp := store.CompositeSchedule(scheduleConnector, scheduleDuration, ocpp.ChargingRateUnit(scheduleUnit))
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
