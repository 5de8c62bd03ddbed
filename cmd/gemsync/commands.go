package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

const defaultWindow = 30 * 24 * time.Hour

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the API key has the Auditor role",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ok, msg := a.client.ValidateAPIKey(cmd.Context())
		if !ok {
			return errors.New(msg)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key is valid")
		return nil
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the venue's trading pair symbols",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		symbols, err := a.client.Symbols(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), symbols)
	},
}

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Print non-zero balances with their USD value",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		balances, msg := a.client.QueryBalances(cmd.Context())
		if msg != "" {
			return errors.New(msg)
		}
		return writeJSON(cmd.OutOrStdout(), balances)
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Print trade history across all symbols, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseWindow(startFlag, endFlag, time.Now())
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		trades, err := a.client.QueryTradeHistory(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), trades)
	},
}

var movementsCmd = &cobra.Command{
	Use:   "movements",
	Short: "Print deposits and withdrawals, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseWindow(startFlag, endFlag, time.Now())
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		movements, err := a.client.QueryDepositsWithdrawals(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), movements)
	},
}

// parseWindow resolves the --start/--end flags. Missing bounds default to the
// last 30 days ending at now.
func parseWindow(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if endStr != "" {
		t, err := parseTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --end: %w", err)
		}
		end = t
	}

	start := end.Add(-defaultWindow)
	if startStr != "" {
		t, err := parseTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --start: %w", err)
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is after end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
