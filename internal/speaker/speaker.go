package speaker

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/Speshl/gorrc_teleop/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	SoundStartup                = "startup"
	SoundShutdown               = "shutdown"
	SoundControllerConnected    = "controller_connected"
	SoundControllerDisconnected = "controller_disconnected"
)

var soundMap = map[string]string{
	SoundStartup:                "startup.wav",
	SoundShutdown:               "shutting_down.wav",
	SoundControllerConnected:    "connected.wav",
	SoundControllerDisconnected: "disconnected.wav",
}

type Speaker struct {
	soundChannel chan string
	cfg          config.SpeakerConfig
	command      func(ctx context.Context, path string) *exec.Cmd
}

func NewSpeaker(cfg config.SpeakerConfig, soundChannel chan string) *Speaker {
	return &Speaker{
		soundChannel: soundChannel,
		cfg:          cfg,
		command:      aplay,
	}
}

func (s *Speaker) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			log.Println("speaker done due to ctx")
			return nil
		case data, ok := <-s.soundChannel:
			if !ok {
				log.Println("speaker channel closed, stopping")
				return nil
			}

			go func() {
				err := s.Play(ctx, data)
				if err != nil {
					log.Errorf("failed to play sound - %s\n", err.Error())
				}
			}()
		}
	}
}

// Queue hands a sound to the Start loop without blocking the caller.
func (s *Speaker) Queue(sound string) {
	select {
	case s.soundChannel <- sound:
	default:
		log.Printf("speaker channel full, skipping %s sound\n", sound)
	}
}

func (s *Speaker) Play(ctx context.Context, sound string) error {
	if !s.cfg.Enabled {
		log.Debugf("speaker disabled, not playing %s sound\n", sound)
		return nil
	}

	soundFile, ok := soundMap[sound]
	if !ok {
		return fmt.Errorf("error: sound not found: %s", sound)
	}

	log.Printf("start playing %s sound\n", sound)
	defer log.Printf("finished playing %s sound\n", sound)

	cmd := s.command(ctx, filepath.Join(s.cfg.SoundDir, soundFile))
	err := cmd.Start()
	if err != nil {
		return fmt.Errorf("error starting audio playback - %w", err)
	}
	err = cmd.Wait()
	if err != nil {
		return fmt.Errorf("error during audio playback - %w", err)
	}
	return nil
}

func aplay(ctx context.Context, path string) *exec.Cmd {
	return exec.CommandContext(ctx, "aplay", path)
}
