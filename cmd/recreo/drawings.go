package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"recreo/drawing"
)

func newDrawingsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drawings",
		Short: "Manage your saved drawings",
	}
	cmd.AddCommand(newDrawingsListCommand(opts), newDrawingsSaveCommand(opts), newDrawingsDeleteCommand(opts))
	return cmd
}

func newDrawingsListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your drawings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				gallery := a.gallery()
				defer gallery.Close()
				if err := gallery.Refresh(ctx); err != nil {
					return err
				}
				return printDrawings(a, gallery)
			})
		},
	}
}

func newDrawingsSaveCommand(opts *rootOptions) *cobra.Command {
	var id, file, thumbnail string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save strokes from a JSON file as a new or existing drawing",
		Long: `Save reads a JSON array of strokes, each {"path": "M x y L x y", "color": "#ffffff", "strokeWidth": 5},
and stores it as a new drawing, or overwrites --id when given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			strokes, err := readStrokes(file)
			if err != nil {
				return usageError(err)
			}
			var thumb []byte
			if thumbnail != "" {
				if thumb, err = os.ReadFile(thumbnail); err != nil {
					return usageError(fmt.Errorf("read thumbnail: %w", err))
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				gallery := a.gallery()
				defer gallery.Close()
				if err := gallery.Refresh(ctx); err != nil {
					return err
				}
				if _, err := gallery.Save(ctx, id, strokes, thumb); err != nil {
					return err
				}
				return printDrawings(a, gallery)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "drawing to overwrite")
	cmd.Flags().StringVar(&file, "file", "", "JSON strokes file (- for stdin)")
	cmd.Flags().StringVar(&thumbnail, "thumbnail", "", "PNG thumbnail to upload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDrawingsDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <drawing-id>",
		Short: "Delete one of your drawings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				gallery := a.gallery()
				defer gallery.Close()
				if err := gallery.Refresh(ctx); err != nil {
					return err
				}
				if err := gallery.Delete(ctx, args[0]); err != nil {
					return err
				}
				return printDrawings(a, gallery)
			})
		},
	}
}

// readStrokes replays the strokes of file through a canvas so colors and
// widths are checked against the palette.
func readStrokes(file string) ([]drawing.Stroke, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read strokes: %w", err)
	}
	var strokes []drawing.Stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil, fmt.Errorf("parse strokes: %w", err)
	}

	canvas := drawing.NewCanvas()
	for i, s := range strokes {
		if err := canvas.SetColor(s.Color); err != nil {
			return nil, fmt.Errorf("stroke %d: %w", i, err)
		}
		if err := canvas.SetStrokeWidth(s.StrokeWidth); err != nil {
			return nil, fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	return strokes, nil
}

func printDrawings(a *app, gallery *drawing.Gallery) error {
	views := drawingViews(gallery.Drawings(), a.backend.storageBase)
	return a.out.print(views, func(w io.Writer) error {
		rows := [][]string{{"ID", "STROKES", "UPDATED", "THUMBNAIL"}}
		for _, v := range views {
			thumb := v.ThumbnailURL
			if thumb == "" {
				thumb = "-"
			}
			rows = append(rows, []string{v.ID, strconv.Itoa(v.Strokes), stamp(v.UpdatedAt), thumb})
		}
		return table(w, rows)
	})
}
