package main

import (
	"context"
	"fmt"
	"os"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/spf13/cobra"
)

var processReq models.ProcessRequest

var (
	processCrop  []float64
	processStyle models.SubtitleStyle
)

var processCmd = &cobra.Command{
	Use:   "process <file-or-url>",
	Short: "Cut a video into parts with optional subtitles and reframing",
	Long: `Cut a local file or a downloaded URL into parts of --part-minutes each.
Every part can be transcribed (--subs), have its subtitles burned in (--burn),
be cropped, reframed for vertical platforms and placed over a background image.
Parts are written to <output>/<name>/final.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := processReq
		req.Source = args[0]
		if cmd.Flags().Changed("crop") {
			if len(processCrop) != 4 {
				return fmt.Errorf("--crop takes top,bottom,left,right")
			}
			req.Crop = &models.Inset{
				Top:    processCrop[0],
				Bottom: processCrop[1],
				Left:   processCrop[2],
				Right:  processCrop[3],
			}
		}
		if styleChanged(cmd) {
			style := processStyle
			req.Style = &style
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		view := newProgress("Processing")
		var res *models.Result
		err = a.interruptible(func(ctx context.Context) error {
			var err error
			res, err = a.svc.Pipeline.Process(ctx, req, view.events())
			return err
		})
		view.finish()
		if res != nil {
			printResult(res)
		}
		return err
	},
}

var visualizeReq models.VisualizeRequest

var visualizeCmd = &cobra.Command{
	Use:   "visualize <audio-or-video>",
	Short: "Render an audio visualizer video per part",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := visualizeReq
		req.Source = args[0]

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		view := newProgress("Rendering")
		var res *models.Result
		err = a.interruptible(func(ctx context.Context) error {
			var err error
			res, err = a.svc.Pipeline.Visualize(ctx, req, view.events())
			return err
		})
		view.finish()
		if res != nil {
			printResult(res)
		}
		return err
	},
}

var publishReq models.PublishRequest

var publishCmd = &cobra.Command{
	Use:   "publish <name>",
	Short: "Upload the finished parts of a processed video",
	Long: `Upload every finished part of output/<name> to the given platforms,
writing a caption for each part. With --notify the links are sent over
WhatsApp once the uploads are done.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := publishReq
		req.Name = args[0]
		if len(req.Platforms) == 0 {
			return fmt.Errorf("at least one --platform is required")
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		view := newProgress("Uploading")
		var ups []models.Upload
		err = a.interruptible(func(ctx context.Context) error {
			var err error
			ups, err = a.svc.Pipeline.Publish(ctx, req, view.events())
			return err
		})
		view.finish()

		for _, up := range ups {
			if up.Error != "" {
				fmt.Printf("part %02d  %-10s  FAILED  %s\n", up.Part, up.Platform, up.Error)
				continue
			}
			fmt.Printf("part %02d  %-10s  %s\n", up.Part, up.Platform, up.URL)
		}
		return err
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <name>",
	Short: "Join the finished parts of a processed video into one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		view := newProgress("Joining")
		var res *models.Result
		err = a.interruptible(func(ctx context.Context) error {
			var err error
			res, err = a.svc.Pipeline.Join(ctx, args[0], view.events())
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

var downloadFormat string

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a video without processing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		format := downloadFormat
		if format == "" {
			format = a.cfg.YtDlp.Format
		}

		view := newProgress("Downloading")
		var path string
		err = a.interruptible(func(ctx context.Context) error {
			var err error
			path, err = a.svc.Downloader.Download(ctx, args[0], format, view.percent)
			return err
		})
		view.finish()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Print the metadata of a remote video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		info, err := a.svc.Downloader.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}

func printResult(res *models.Result) {
	fmt.Fprintf(os.Stdout, "%s (%d parts) in %s\n", res.Name, len(res.Parts), res.Dir)
	for _, p := range res.Parts {
		fmt.Fprintf(os.Stdout, "  %02d  %s\n", p.Index, p.Path)
	}
	if res.CombinedSRT != "" {
		fmt.Fprintf(os.Stdout, "  subtitles  %s\n", res.CombinedSRT)
	}
}

// registerStyle binds the subtitle style flags of cmd to s
func registerStyle(cmd *cobra.Command, s *models.SubtitleStyle) {
	f := cmd.Flags()
	f.StringVar(&s.Font, "font", "", "subtitle font name")
	f.IntVar(&s.Size, "font-size", 0, "subtitle font size")
	f.StringVar(&s.Color, "color", "", "text color as #RRGGBB")
	f.StringVar(&s.OutlineColor, "outline-color", "", "outline color as #RRGGBB")
	f.IntVar(&s.Outline, "outline", 0, "outline width")
	f.BoolVar(&s.Bold, "bold", false, "bold text")
	f.StringVar(&s.Position, "position", "", "bottom, middle or top")
	f.IntVar(&s.MarginV, "margin-v", 0, "vertical margin")
	f.IntVar(&s.MaxLineChars, "max-line-chars", 0, "wrap subtitle lines at this width")
}

func styleChanged(cmd *cobra.Command) bool {
	for _, name := range []string{"font", "font-size", "color", "outline-color", "outline", "bold", "position", "margin-v", "max-line-chars"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func init() {
	f := processCmd.Flags()
	f.Float64Var(&processReq.PartMinutes, "part-minutes", 0, "part length in minutes (default from config)")
	f.Float64Var(&processReq.Start, "start", 0, "start of the range to cut, in seconds")
	f.Float64Var(&processReq.End, "end", 0, "end of the range to cut, in seconds (0 = end of video)")
	f.BoolVar(&processReq.Subtitles, "subs", false, "transcribe every part to SRT")
	f.BoolVar(&processReq.Burn, "burn", false, "burn subtitles into the video (implies --subs)")
	f.StringVar(&processReq.Language, "lang", "", "transcription language (default from config)")
	f.Float64SliceVar(&processCrop, "crop", nil, "edge crop fractions top,bottom,left,right")
	f.StringVar(&processReq.Vertical, "vertical", "", "vertical reframing: fill, fit or zoom")
	f.Float64Var(&processReq.Zoom, "zoom", 0, "zoom factor for --vertical zoom")
	f.Float64Var(&processReq.OffsetX, "offset-x", 0, "horizontal pan from -1 to 1")
	f.StringVar(&processReq.Background, "background", "", "background image to place the video over")
	registerStyle(processCmd, &processStyle)

	f = visualizeCmd.Flags()
	f.StringVar(&visualizeReq.Background, "background", "", "background image")
	f.StringVar(&visualizeReq.Color, "color", "", "wave color as #RRGGBB")
	f.StringVar(&visualizeReq.Mode, "mode", "", "waves or freqs")
	f.Float64Var(&visualizeReq.PartMinutes, "part-minutes", 0, "part length in minutes (default from config)")

	f = publishCmd.Flags()
	f.StringSliceVar(&publishReq.Platforms, "platform", nil, "youtube, drive, tiktok, instagram or whatsapp (repeatable)")
	f.IntSliceVar(&publishReq.Parts, "part", nil, "part numbers to upload (default all)")
	f.StringVar(&publishReq.Language, "lang", "", "caption language")
	f.BoolVar(&publishReq.Notify, "notify", false, "send the links over WhatsApp")

	downloadCmd.Flags().StringVar(&downloadFormat, "format", "", "yt-dlp format selector (default from config)")
}
