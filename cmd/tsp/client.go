package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tspsdk "tsproxy/sdk/go"
)

func withClient(ctx context.Context, fn func(context.Context, *tspsdk.Client) error) error {
	cookie := viper.GetString("cookie")
	if cookie == "" {
		return fmt.Errorf("--cookie or TSP_COOKIE required")
	}
	c := tspsdk.New(viper.GetString("proxy"), cookie)
	err := fn(ctx, c)
	if apiErr, ok := err.(*tspsdk.APIError); ok {
		return fmt.Errorf("%s (status %d)", apiErr.Message(), apiErr.StatusCode)
	}
	return err
}

func entryFlags(cmd *cobra.Command, req *tspsdk.EntryRequest) {
	cmd.Flags().Int64Var(&req.TaskID, "task-id", 0, "remote task id")
	cmd.Flags().StringVar(&req.Activity, "activity", "", "activity description")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "end date YYYY-MM-DD (defaults to --start)")
	_ = cmd.MarkFlagRequired("task-id")
	_ = cmd.MarkFlagRequired("start")
}

func bulkCmd() *cobra.Command {
	var req tspsdk.EntryRequest
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Submit one entry per business day of a range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				raw, err := c.Bulk(ctx, req)
				if err != nil {
					return err
				}
				return printRaw(raw)
			})
		},
	}
	entryFlags(cmd, &req)
	return cmd
}

func rangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range START END",
		Short: "Show entries between two dates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				days, err := c.Range(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printDays(days)
			})
		},
	}
}

func checkCmd() *cobra.Command {
	var invalidOnly bool
	cmd := &cobra.Command{
		Use:   "check YEAR MONTH",
		Short: "Check every day of a month against the eight-hour rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			month, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid month %q", args[1])
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				out, err := c.CheckMonth(ctx, year, month)
				if err != nil {
					return err
				}
				if invalidOnly {
					kept := out[:0]
					for _, r := range out {
						if !r.IsValid {
							kept = append(kept, r)
						}
					}
					out = kept
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Day", "Total", "Hours", "Valid"})
				invalid := 0
				for _, r := range out {
					mark := "yes"
					if !r.IsValid {
						mark = "NO"
						invalid++
					}
					tw.AppendRow(table.Row{r.Date, r.Day, r.TotalDuration, r.Hours, mark})
				}
				tw.AppendFooter(table.Row{"", "", "", "invalid", invalid})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&invalidOnly, "invalid", false, "only show days that break the rule")
	return cmd
}

func weekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week",
		Short: "Show the current week",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				week, err := c.ThisWeek(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(week)
				}
				if err := printDays(week.Daily); err != nil {
					return err
				}
				fmt.Printf("Week total: %s\n", week.DurationWeek)
				return nil
			})
		},
	}
}

func dateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "date DATE",
		Short: "Show entries of one date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				days, err := c.ByDate(ctx, args[0])
				if err != nil {
					return err
				}
				return printDays(days)
			})
		},
	}
}

func lastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Show the most recent entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				days, err := c.Latest(ctx)
				if err != nil {
					return err
				}
				return printDays(days)
			})
		},
	}
}

func updateCmd() *cobra.Command {
	var req tspsdk.EntryRequest
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Rewrite an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				raw, err := c.Update(ctx, id, req)
				if err != nil {
					return err
				}
				return printRaw(raw)
			})
		},
	}
	entryFlags(cmd, &req)
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *tspsdk.Client) error {
				if _, err := c.Delete(ctx, id); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": id})
				}
				fmt.Printf("Deleted entry %d\n", id)
				return nil
			})
		},
	}
}

func printDays(days []tspsdk.DayRecord) error {
	if viper.GetBool("json") {
		return printJSON(days)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Date", "Day", "Total", "ID", "Task", "Duration", "Activity"})
	for _, d := range days {
		weekday := ""
		if t, err := time.Parse("2006-01-02", d.Date); err == nil {
			weekday = t.Weekday().String()[:3]
		}
		if len(d.Data) == 0 {
			tw.AppendRow(table.Row{d.Date, weekday, d.TotalDuration, "", "", "", ""})
			continue
		}
		for i, e := range d.Data {
			date, day, total := d.Date, weekday, d.TotalDuration
			if i > 0 {
				date, day, total = "", "", ""
			}
			tw.AppendRow(table.Row{date, day, total, e.ID, e.TaskTitle, e.Duration, e.Activity})
		}
	}
	tw.Render()
	return nil
}

func printRaw(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	return printJSON(v)
}
