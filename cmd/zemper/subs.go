package main

import (
	"context"
	"fmt"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/subtitles"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/workflow"
	"github.com/spf13/cobra"
)

var subsCmd = &cobra.Command{
	Use:   "subs",
	Short: "Subtitle file utilities",
}

var (
	mergeOutput      string
	mergeOffsets     []float64
	mergePartMinutes float64
)

var subsMergeCmd = &cobra.Command{
	Use:   "merge <part.srt>...",
	Short: "Combine per-part SRT files into one",
	Long: `Combine SRT files into a single file, shifting each by its part offset.
Offsets are given in seconds with --offsets; without them part N starts at
(N-1) * --part-minutes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offsets, err := partOffsets(len(args), mergeOffsets, mergePartMinutes)
		if err != nil {
			return err
		}

		parts := make([]subtitles.PartSubtitle, len(args))
		for i, path := range args {
			parts[i] = subtitles.PartSubtitle{Path: path, Offset: offsets[i]}
		}

		n, err := subtitles.CombinePartsFile(mergeOutput, parts)
		if err != nil {
			return err
		}
		fmt.Printf("%d cues written to %s\n", n, mergeOutput)
		return nil
	},
}

var restyle models.SubtitleStyle

var subsStyleCmd = &cobra.Command{
	Use:   "style <file.ass>",
	Short: "Rewrite the styles of an ASS file in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !styleChanged(cmd) {
			return fmt.Errorf("no style flag given")
		}
		if err := subtitles.RewriteStylesFile(args[0], workflow.StyleFrom(restyle)); err != nil {
			return err
		}
		fmt.Printf("restyled %s\n", args[0])
		return nil
	},
}

var (
	burnOutput string
	burnStyle  models.SubtitleStyle
)

var subsBurnCmd = &cobra.Command{
	Use:   "burn <video> <file.srt>",
	Short: "Burn an SRT file into a video",
	Long: `Render the subtitles of an SRT file onto a video. The style flags are
passed to ffmpeg as force_style. The result goes to --output, or next to the
video as <video>_subs.mp4.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.BurnRequest{Video: args[0], Subtitle: args[1], Output: burnOutput}
		if styleChanged(cmd) {
			style := burnStyle
			req.Style = &style
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		view := newProgress("Burning")
		var res *models.Result
		err = a.interruptible(func(ctx context.Context) error {
			var err error
			res, err = a.svc.Pipeline.Burn(ctx, req, view.events())
			return err
		})
		view.finish()
		if err != nil {
			return err
		}
		fmt.Println(res.Parts[0].Path)
		return nil
	},
}

// partOffsets returns n offsets, taken from explicit seconds or spaced by
// partMinutes
func partOffsets(n int, explicit []float64, partMinutes float64) ([]time.Duration, error) {
	offsets := make([]time.Duration, n)
	if len(explicit) > 0 {
		if len(explicit) != n {
			return nil, fmt.Errorf("got %d offsets for %d files", len(explicit), n)
		}
		for i, s := range explicit {
			if s < 0 {
				return nil, fmt.Errorf("offset %v is negative", s)
			}
			offsets[i] = time.Duration(s * float64(time.Second))
		}
		return offsets, nil
	}
	if partMinutes <= 0 {
		return nil, fmt.Errorf("--part-minutes must be positive")
	}
	step := time.Duration(partMinutes * float64(time.Minute))
	for i := range offsets {
		offsets[i] = time.Duration(i) * step
	}
	return offsets, nil
}

func init() {
	subsMergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "combined.srt", "output SRT file")
	subsMergeCmd.Flags().Float64SliceVar(&mergeOffsets, "offsets", nil, "start of each part in seconds")
	subsMergeCmd.Flags().Float64Var(&mergePartMinutes, "part-minutes", 5, "part length when --offsets is not given")
	registerStyle(subsStyleCmd, &restyle)
	subsBurnCmd.Flags().StringVarP(&burnOutput, "output", "o", "", "output video (default <video>_subs.mp4)")
	registerStyle(subsBurnCmd, &burnStyle)

	subsCmd.AddCommand(subsMergeCmd)
	subsCmd.AddCommand(subsStyleCmd)
	subsCmd.AddCommand(subsBurnCmd)
}
