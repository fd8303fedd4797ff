// ABOUTME: Audio fundamentals package providing the PCM stream format
// ABOUTME: Defines Format and sample conversion helpers
// Package audio provides the PCM format description shared by the
// visualization output and the audio sources that feed it.
//
// A Format knows how many bytes one second of audio occupies, which is all
// the output needs to turn a running byte count into playback time:
//
//	format := audio.Format{
//	    SampleRate: 44100,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//	if err := format.Validate(); err != nil {
//	    return err
//	}
//	lead := format.Duration(bytesPlayed) - time.Since(start)
package audio
