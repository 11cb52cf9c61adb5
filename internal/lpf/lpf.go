// Package lpf reads and writes light program files (.lpf), the binary
// artifact a Light Plate Apparatus executes: a fixed 32-byte header
// followed by per-step, per-channel 12-bit grayscale values.
package lpf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Version is the only file format version this codec understands.
const Version = 1

// HeaderSize is the fixed size of the file header in bytes. Offsets
// 16..31 are reserved and zero-filled.
const HeaderSize = 32

// MaxGrayscale mirrors the device's 12-bit resolution; Encode
// saturates payload values here.
const MaxGrayscale = 4095

// maxPayloadWords caps the payload size Decode will allocate for
// (128 MiB), far above any real plate program.
const maxPayloadWords = 64 << 20

// UnsupportedVersionError reports a file whose format version this
// codec cannot handle.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("lpf file version %d not recognized", e.Version)
}

// File is one light program. NumChannels counts every LED in the
// device (rows * cols * channels per well); Grayscale is step-major,
// len NumSteps*NumChannels.
type File struct {
	Version     uint32
	NumChannels uint32
	StepMS      uint32
	NumSteps    uint32
	Grayscale   []uint16
}

// New returns a File with the current format version set.
func New() *File {
	return &File{Version: Version}
}

// Decode reads a light program from r.
func Decode(r io.Reader) (*File, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read lpf header: %w", err)
	}
	f := &File{
		Version:     binary.LittleEndian.Uint32(header[0:4]),
		NumChannels: binary.LittleEndian.Uint32(header[4:8]),
		StepMS:      binary.LittleEndian.Uint32(header[8:12]),
		NumSteps:    binary.LittleEndian.Uint32(header[12:16]),
	}
	if f.Version != Version {
		return nil, &UnsupportedVersionError{Version: f.Version}
	}

	// Header fields are untrusted; the product must not overflow or
	// drive a huge allocation before the payload read fails.
	words := uint64(f.NumChannels) * uint64(f.NumSteps)
	if words > maxPayloadWords {
		return nil, fmt.Errorf("lpf header promises %d grayscale words, limit is %d", words, uint64(maxPayloadWords))
	}
	payload := make([]byte, 2*words)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read lpf payload (%d words): %w", words, err)
	}
	f.Grayscale = make([]uint16, int(words))
	for i := range f.Grayscale {
		f.Grayscale[i] = binary.LittleEndian.Uint16(payload[2*i:])
	}
	return f, nil
}

// Encode writes the program to w. Grayscale values above MaxGrayscale
// are saturated, not rejected; range enforcement proper happens during
// intensity conversion, this is a last-line clamp before the device.
func (f *File) Encode(w io.Writer) error {
	if f.Version != Version {
		return &UnsupportedVersionError{Version: f.Version}
	}
	if want := int(f.NumChannels) * int(f.NumSteps); len(f.Grayscale) != want {
		return fmt.Errorf("lpf payload has %d words, header promises %d", len(f.Grayscale), want)
	}

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], f.Version)
	binary.LittleEndian.PutUint32(header[4:8], f.NumChannels)
	binary.LittleEndian.PutUint32(header[8:12], f.StepMS)
	binary.LittleEndian.PutUint32(header[12:16], f.NumSteps)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write lpf header: %w", err)
	}

	payload := make([]byte, 2*len(f.Grayscale))
	for i, gs := range f.Grayscale {
		if gs > MaxGrayscale {
			gs = MaxGrayscale
		}
		binary.LittleEndian.PutUint16(payload[2*i:], gs)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write lpf payload: %w", err)
	}
	return nil
}

// Load reads a light program file from disk.
func Load(path string) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	f, err := Decode(bufio.NewReader(fd))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save writes the program to disk. The file appears atomically: the
// payload is written to a temporary file in the same directory and
// renamed into place, so a failed save leaves no partial program.
func (f *File) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".lpf-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := f.Encode(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
