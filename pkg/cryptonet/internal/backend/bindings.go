//go:build cgo && privid_native

package backend

/*
#cgo LDFLAGS: -lprivid_fhe_uber
#cgo linux LDFLAGS: -ldl -lm
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>

void privid_initialize_lib(const char* working_directory, const int working_directory_length);
bool privid_initialize_session(const char* settings, const unsigned int settings_length, void** session_ptr);
void privid_deinitialize_session(void* session_ptr);
void privid_free_char_buffer(char* buffer);
bool privid_set_configuration(void* session_ptr, const char* user_config, const int user_config_length);

int32_t privid_user_enroll(void* session_ptr, const char* user_config, const int user_config_length,
	const uint8_t* image_bytes, const int image_width, const int image_height,
	char** result_out, int* result_out_length);
int32_t privid_user_predict(void* session_ptr, const char* user_config, const int user_config_length,
	const uint8_t* image_bytes, const int image_width, const int image_height,
	char** result_out, int* result_out_length);
int32_t privid_doc_scan_front(void* session_ptr, const char* user_config, const int user_config_length,
	const uint8_t* image_bytes, const int image_width, const int image_height,
	char** result_out, int* result_out_length);
int32_t privid_doc_scan_back(void* session_ptr, const char* user_config, const int user_config_length,
	const uint8_t* image_bytes, const int image_width, const int image_height,
	char** result_out, int* result_out_length);

int32_t privid_compare_embeddings(void* session_ptr, const char* user_config, const int user_config_length,
	const char* embedding_one, const int embedding_one_length,
	const char* embedding_two, const int embedding_two_length,
	char** result_out, int* result_out_length);
int32_t privid_encrypt_payload(void* session_ptr, const char* user_config, const int user_config_length,
	const char* payload, const int payload_length,
	char** result_out, int* result_out_length);

bool privid_check_models(const bool is_enroll_mode);
const char* privid_get_version(void);
void privid_about_models(void* session_ptr, char** about_models, int* about_models_length);

// The image entry points share one signature; the Go side picks the target
// through this switch so the call site stays in one place.
static int32_t privid_image_call(int op, void* session_ptr, const char* user_config, const int user_config_length,
	const uint8_t* image_bytes, const int image_width, const int image_height,
	char** result_out, int* result_out_length) {
	switch (op) {
	case 0:
		return privid_user_enroll(session_ptr, user_config, user_config_length, image_bytes, image_width, image_height, result_out, result_out_length);
	case 1:
		return privid_user_predict(session_ptr, user_config, user_config_length, image_bytes, image_width, image_height, result_out, result_out_length);
	case 2:
		return privid_doc_scan_front(session_ptr, user_config, user_config_length, image_bytes, image_width, image_height, result_out, result_out_length);
	case 3:
		return privid_doc_scan_back(session_ptr, user_config, user_config_length, image_bytes, image_width, image_height, result_out, result_out_length);
	}
	return -1;
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

const (
	opEnroll C.int = iota
	opPredict
	opDocFront
	opDocBack
)

type nativeDriver struct{}

var (
	native        nativeDriver
	versionOnce   sync.Once
	nativeVersion string
)

// Native returns the driver bound to the linked privid_fhe_uber library.
func Native() (Driver, error) {
	return native, nil
}

// Version returns the version string reported by the native library.
func Version() string {
	return native.GetVersion()
}

// allocText copies Go bytes into C memory. The library may hold the pointer
// for the whole (long-running) call, so Go memory is never handed over
// directly. Callers must free the result.
func allocText(data []byte) (*C.char, C.int) {
	if len(data) == 0 {
		return nil, 0
	}
	return (*C.char)(C.CBytes(data)), C.int(len(data))
}

func allocPixels(data []byte) *C.uint8_t {
	if len(data) == 0 {
		return nil
	}
	return (*C.uint8_t)(C.CBytes(data))
}

func cfree[T any](p *T) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}

func (nativeDriver) InitializeLib(workingDir string) {
	dir, n := allocText([]byte(workingDir))
	defer cfree(dir)
	C.privid_initialize_lib(dir, n)
}

func (nativeDriver) InitializeSession(settings []byte) (Handle, bool) {
	cs, n := allocText(settings)
	defer cfree(cs)

	var sess unsafe.Pointer
	ok := C.privid_initialize_session(cs, C.uint(n), &sess)
	if !bool(ok) || sess == nil {
		return nil, false
	}
	return Handle(sess), true
}

func (nativeDriver) DeinitializeSession(h Handle) {
	if h == nil {
		return
	}
	C.privid_deinitialize_session(unsafe.Pointer(h))
}

func (nativeDriver) FreeCharBuffer(b Buffer) {
	if b.Ptr == nil {
		return
	}
	C.privid_free_char_buffer((*C.char)(b.Ptr))
}

func (nativeDriver) SetConfiguration(h Handle, config []byte) bool {
	cc, n := allocText(config)
	defer cfree(cc)
	return bool(C.privid_set_configuration(unsafe.Pointer(h), cc, n))
}

func imageCall(op C.int, h Handle, config, pixels []byte, width, height int) (int32, Buffer) {
	cc, n := allocText(config)
	defer cfree(cc)
	px := allocPixels(pixels)
	defer cfree(px)

	var out *C.char
	var outLen C.int
	rc := C.privid_image_call(op, unsafe.Pointer(h), cc, n, px, C.int(width), C.int(height), &out, &outLen)
	return int32(rc), Buffer{Ptr: unsafe.Pointer(out), Len: int(outLen)}
}

func (nativeDriver) UserEnroll(h Handle, config, pixels []byte, width, height int) (int32, Buffer) {
	return imageCall(opEnroll, h, config, pixels, width, height)
}

func (nativeDriver) UserPredict(h Handle, config, pixels []byte, width, height int) (int32, Buffer) {
	return imageCall(opPredict, h, config, pixels, width, height)
}

func (nativeDriver) DocScanFront(h Handle, config, pixels []byte, width, height int) (int32, Buffer) {
	return imageCall(opDocFront, h, config, pixels, width, height)
}

func (nativeDriver) DocScanBack(h Handle, config, pixels []byte, width, height int) (int32, Buffer) {
	return imageCall(opDocBack, h, config, pixels, width, height)
}

func (nativeDriver) CompareEmbeddings(h Handle, config, one, two []byte) (int32, Buffer) {
	cc, n := allocText(config)
	defer cfree(cc)
	e1, n1 := allocText(one)
	defer cfree(e1)
	e2, n2 := allocText(two)
	defer cfree(e2)

	var out *C.char
	var outLen C.int
	rc := C.privid_compare_embeddings(unsafe.Pointer(h), cc, n, e1, n1, e2, n2, &out, &outLen)
	return int32(rc), Buffer{Ptr: unsafe.Pointer(out), Len: int(outLen)}
}

func (nativeDriver) EncryptPayload(h Handle, config, payload []byte) (int32, Buffer) {
	cc, n := allocText(config)
	defer cfree(cc)
	pl, pn := allocText(payload)
	defer cfree(pl)

	var out *C.char
	var outLen C.int
	rc := C.privid_encrypt_payload(unsafe.Pointer(h), cc, n, pl, pn, &out, &outLen)
	return int32(rc), Buffer{Ptr: unsafe.Pointer(out), Len: int(outLen)}
}

func (nativeDriver) CheckModels(enrollMode bool) bool {
	return bool(C.privid_check_models(C.bool(enrollMode)))
}

// GetVersion reads the static version string once; the library owns that
// memory and it must never be freed.
func (nativeDriver) GetVersion() string {
	versionOnce.Do(func() {
		if v := C.privid_get_version(); v != nil {
			nativeVersion = C.GoString(v)
		}
	})
	return nativeVersion
}

func (nativeDriver) AboutModels(h Handle) Buffer {
	var out *C.char
	var outLen C.int
	C.privid_about_models(unsafe.Pointer(h), &out, &outLen)
	return Buffer{Ptr: unsafe.Pointer(out), Len: int(outLen)}
}
