//go:build espeak

package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

int
espeak_say(const char *text, const char *lang, int rate)
{
	if (!text || !lang)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs = { .languages = lang };
	espeak_SetVoiceByProperties(&specs);
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	espeak_Synth(text, 500, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"
)

// Espeak talks through libespeak-ng's own audio output. Playback cannot be
// interrupted once started; ctx is only checked before synthesis.
type Espeak struct {
	Language string
	Rate     int
}

func NewEspeak(language string, rate int) (Espeak, error) {
	return Espeak{Language: language, Rate: rate}, nil
}

func (e Espeak) Play(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lang := e.Language
	if lang == "" {
		lang = "en"
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))

	rc := C.espeak_say(ctext, clang, C.int(e.Rate))
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}

	return nil
}
