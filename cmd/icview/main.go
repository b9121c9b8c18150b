// Checkpoint viewer - steps through the checkpoints of a relaxation run and
// draws the particles over the model density.
//
// Usage: go run ./cmd/icview -dir out/ [-config run.yaml]
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"

	rl "github.com/gen2brain/raylib-go/raylib"
	gui "github.com/gen2brain/raylib-go/raygui"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/relax"
	"github.com/pthm-cable/icgen/telemetry"
)

const (
	windowWidth  = 1000
	windowHeight = 720
	previewSize  = 640
	panelWidth   = windowWidth - previewSize - 30
	gridSize     = 256
)

func main() {
	dir := flag.String("dir", ".", "Directory holding checkpoint files")
	basename := flag.String("basename", "", "Checkpoint basename (empty = use config)")
	configPath := flag.String("config", "", "Config of the run, for the model density background")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *basename == "" {
		*basename = cfg.Run.StateDumpBasename
	}
	paths, err := listCheckpoints(*dir, *basename)
	if err != nil {
		log.Fatal(err)
	}
	if len(paths) == 0 {
		log.Fatalf("no %s_*.json checkpoints in %s", *basename, *dir)
	}

	// The background needs the model the run used
	var rho model.Func
	if *configPath != "" {
		if rho, err = relax.ModelFromConfig(cfg); err != nil {
			log.Fatalf("failed to build model: %v", err)
		}
	}

	rl.InitWindow(windowWidth, windowHeight, "Relaxation Checkpoints")
	defer rl.CloseWindow()
	rl.SetTargetFPS(30)

	img := rl.GenImageColor(gridSize, gridSize, rl.Black)
	texture := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	defer rl.UnloadTexture(texture)

	index := len(paths) - 1
	loaded := -1
	var ck *telemetry.Checkpoint
	var loadErr error
	var hMax, dispMax float64

	drop, shownDrop := 2, -1
	colorMode := colorByRatio
	pointSize := float32(2)
	playing := false
	showModel := rho != nil

	for !rl.WindowShouldClose() {
		if playing {
			index = (index + 1) % len(paths)
		}
		if index != loaded {
			next, err := telemetry.LoadCheckpoint(paths[index])
			loadErr = err
			if err == nil {
				ck = next
				hMax, dispMax = extents(ck)
			}
			loaded = index
			shownDrop = -1
		}

		var p plane
		if ck != nil {
			p = planeFor(ck.NDim, drop)
			if rho != nil && p.drop != shownDrop {
				updateTexture(texture, sampleModel(rho, ck.NDim, ck.Box, p, gridSize))
				shownDrop = p.drop
			}
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		view := rl.Rectangle{X: 10, Y: 10, Width: previewSize, Height: previewSize}
		if showModel {
			rl.DrawTexturePro(
				texture,
				rl.Rectangle{X: 0, Y: 0, Width: gridSize, Height: gridSize},
				view,
				rl.Vector2{X: 0, Y: 0},
				0,
				rl.White,
			)
		} else {
			rl.DrawRectangleRec(view, rl.Black)
		}
		rl.DrawRectangleLines(10, 10, previewSize, previewSize, rl.DarkGray)

		if ck != nil {
			for _, ps := range ck.Particles {
				u, v := p.project(ps, ck.Box)
				pos := rl.Vector2{X: view.X + float32(u)*view.Width, Y: view.Y + float32(v)*view.Height}
				s := shade(ps, colorMode, hMax, dispMax)
				var c color.RGBA
				if colorMode == colorByRatio {
					c = diverging(s)
				} else {
					c = gradient(float32(s))
				}
				rl.DrawCircleV(pos, pointSize, c)
			}
		}

		// Stats
		statsY := int32(previewSize + 25)
		if loadErr != nil {
			rl.DrawText(loadErr.Error(), 15, statsY, 14, rl.Red)
		} else if ck != nil {
			delta := "auto"
			if ck.DeltaRNorm != nil {
				delta = fmt.Sprintf("%.3g", *ck.DeltaRNorm)
			}
			rl.DrawText(fmt.Sprintf("Iteration %d  N=%d  ndim=%d  model=%s  delta=%s",
				ck.Iteration, len(ck.Particles), ck.NDim, ck.Model, delta), 15, statsY, 16, rl.DarkGray)
			status := ck.Termination
			if status == "" {
				status = "running"
			}
			rl.DrawText(fmt.Sprintf("Total mass %.4g  h max %.3g  disp max %.3g  %s",
				ck.TotalMass, hMax, dispMax, status), 15, statsY+20, 16, rl.DarkGray)
		}

		// Control panel
		panelX := float32(previewSize + 20)
		panelY := float32(10)

		rl.DrawText("Checkpoints", int32(panelX), int32(panelY), 20, rl.DarkGray)
		panelY += 35

		rl.DrawText(fmt.Sprintf("Checkpoint %d of %d", index+1, len(paths)), int32(panelX), int32(panelY), 14, rl.Gray)
		panelY += 18
		if len(paths) > 1 {
			newIndex := gui.SliderBar(
				rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 40), Height: 20},
				"", "",
				float32(index), 0, float32(len(paths)-1),
			)
			if int(newIndex+0.5) != index {
				index = int(newIndex + 0.5)
			}
		}
		panelY += 35

		rl.DrawText("Point size", int32(panelX), int32(panelY), 14, rl.Gray)
		panelY += 18
		pointSize = gui.SliderBar(
			rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 80), Height: 20},
			"", "",
			pointSize, 0.5, 8,
		)
		rl.DrawText(fmt.Sprintf("%.1f", pointSize), int32(panelX+float32(panelWidth-70)), int32(panelY+2), 16, rl.DarkGray)
		panelY += 35

		if ck != nil && ck.NDim == 3 {
			rl.DrawText("Projected axis", int32(panelX), int32(panelY), 14, rl.Gray)
			panelY += 18
			newDrop := gui.SliderBar(
				rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 80), Height: 20},
				"x", "z",
				float32(drop), 0, 2,
			)
			drop = int(newDrop + 0.5)
			panelY += 35
		}

		rl.DrawLine(int32(panelX), int32(panelY), int32(panelX)+int32(panelWidth)-20, int32(panelY), rl.LightGray)
		panelY += 15

		rl.DrawText("Colour: "+colorModeNames[colorMode], int32(panelX), int32(panelY), 16, rl.DarkGray)
		panelY += 25
		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 120, Height: 30}, "Next colour") {
			colorMode = (colorMode + 1) % numColorModes
		}
		if rho != nil && gui.Button(rl.Rectangle{X: panelX + 130, Y: panelY, Width: 120, Height: 30}, toggleText(showModel, "Hide model", "Show model")) {
			showModel = !showModel
		}
		panelY += 45

		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 120, Height: 30}, toggleText(playing, "Stop", "Play")) {
			playing = !playing
		}
		if gui.Button(rl.Rectangle{X: panelX + 130, Y: panelY, Width: 120, Height: 30}, "Last") {
			index = len(paths) - 1
			playing = false
		}

		rl.DrawText("Left/Right: step checkpoints", int32(panelX), int32(windowHeight-30), 12, rl.LightGray)
		if rl.IsKeyPressed(rl.KeyRight) && index < len(paths)-1 {
			index++
		}
		if rl.IsKeyPressed(rl.KeyLeft) && index > 0 {
			index--
		}

		rl.EndDrawing()
	}
}

func toggleText(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}

// updateTexture updates the GPU texture from the grid values
func updateTexture(texture rl.Texture2D, grid []float32) {
	pixels := make([]color.RGBA, len(grid))
	for i, v := range grid {
		pixels[i] = gradient(v)
	}
	rl.UpdateTexture(texture, pixels)
}
