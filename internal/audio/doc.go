// Package audio plays synthesized pages through the system audio device
// using oto/v3. MP3 and WAV clips are decoded to 16-bit PCM and converted to
// the device format; the end of each clip is reported through a callback.
package audio
