package service

import (
	"context"
	"os"
	"testing"

	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/dto"
	"healthcare-assistant-be/internal/pkg/serverutils"
	"healthcare-assistant-be/pkg/classifier"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	result *classifier.Result
	err    error
	calls  int

	seenPath    string
	pathExisted bool
}

func (f *fakeClassifier) Classify(ctx context.Context, mode, imagePath string) (*classifier.Result, error) {
	f.calls++
	f.seenPath = imagePath
	if _, err := os.Stat(imagePath); err == nil {
		f.pathExisted = true
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeClassifier) Modes() []string {
	return []string{constant.ImageProcessModeSkin, constant.ImageProcessModeMedicalRecord}
}

type fakeStorage struct {
	url string
	err error
}

func (f *fakeStorage) Upload(ctx context.Context, data []byte, fileName, folder string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func skinResult() *classifier.Result {
	return &classifier.Result{
		Success:              true,
		TopDisease:           "Eczema",
		TopDiseaseVietnamese: "Cham",
		TopProbability:       81.5,
		AllPredictions: []classifier.Prediction{
			{Disease: "Eczema", VietnameseName: "Cham", Probability: 81.5},
			{Disease: "Psoriasis", VietnameseName: "Vay nen", Probability: 12.1},
			{Disease: "Dermatitis", VietnameseName: "Viem da", Probability: 4.2},
			{Disease: "Melanoma", VietnameseName: "U hac to", Probability: 1.1},
			{Disease: "Acne", VietnameseName: "Mun", Probability: 0.6},
		},
	}
}

func jpegInput() *dto.ImageDiagnosisInput {
	return &dto.ImageDiagnosisInput{
		FileName:    "rash.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("jpegdata"),
	}
}

func TestDiagnoseRejectsUnsupportedType(t *testing.T) {
	svc := NewDiagnosisService(&fakeChatService{}, &fakeClassifier{result: skinResult()}, &fakeStorage{}, nopLogger{})

	input := jpegInput()
	input.ContentType = "application/pdf"
	_, err := svc.Diagnose(context.Background(), nil, input)

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindValidation, appErr.Kind)
}

func TestDiagnoseRejectsUnknownMode(t *testing.T) {
	clf := &fakeClassifier{result: skinResult()}
	svc := NewDiagnosisService(&fakeChatService{}, clf, &fakeStorage{}, nopLogger{})

	input := jpegInput()
	input.ProcessMode = "retina"
	_, err := svc.Diagnose(context.Background(), nil, input)

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindValidation, appErr.Kind)
	assert.Zero(t, clf.calls)
}

func TestDiagnoseClassifierFailure(t *testing.T) {
	clf := &fakeClassifier{err: &classifier.ProcessError{Detail: "exited with error", Stderr: "traceback"}}
	svc := NewDiagnosisService(&fakeChatService{}, clf, &fakeStorage{}, nopLogger{})

	_, err := svc.Diagnose(context.Background(), nil, jpegInput())

	appErr, ok := serverutils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindExternalProcess, appErr.Kind)
}

func TestDiagnoseGuest(t *testing.T) {
	chat := &fakeChatService{}
	svc := NewDiagnosisService(chat, &fakeClassifier{result: skinResult()}, &fakeStorage{url: "https://bucket.s3.region.amazonaws.com/chatbot/x.jpg"}, nopLogger{})

	res, err := svc.Diagnose(context.Background(), nil, jpegInput())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.ConversationId)
	assert.Empty(t, chat.userTexts)
	require.NotNil(t, res.ImageUrl)
	require.NotNil(t, res.Results)
	assert.Equal(t, "Eczema", res.Results.TopDisease)
	assert.Len(t, res.Results.AllPredictions, 5)
}

func TestDiagnoseStorageFailureDegradesToNullURL(t *testing.T) {
	svc := NewDiagnosisService(&fakeChatService{}, &fakeClassifier{result: skinResult()}, &fakeStorage{err: assert.AnError}, nopLogger{})

	res, err := svc.Diagnose(context.Background(), nil, jpegInput())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.ImageUrl)
}

func TestDiagnosePersistsTurnForAuthedUser(t *testing.T) {
	chat := &fakeChatService{}
	svc := NewDiagnosisService(chat, &fakeClassifier{result: skinResult()}, &fakeStorage{url: "https://x/y.jpg"}, nopLogger{})
	userId := uuid.New()

	res, err := svc.Diagnose(context.Background(), &userId, jpegInput())

	require.NoError(t, err)
	require.NotNil(t, res.ConversationId)
	require.Len(t, chat.created, 1)
	assert.Equal(t, chat.created[0].Id, *res.ConversationId)
	assert.Equal(t, []string{constant.DiagnosisUserMessage}, chat.userTexts)
	require.Len(t, chat.botTexts, 1)
	assert.Contains(t, chat.botTexts[0], "Eczema")
	assert.Contains(t, chat.botTexts[0], "Psoriasis")
}

func TestDiagnoseInvalidConversationIdStartsFresh(t *testing.T) {
	chat := &fakeChatService{owned: map[uuid.UUID]uuid.UUID{}}
	svc := NewDiagnosisService(chat, &fakeClassifier{result: skinResult()}, &fakeStorage{url: "https://x/y.jpg"}, nopLogger{})
	userId := uuid.New()
	stale := uuid.New()

	input := jpegInput()
	input.ConversationId = &stale

	res, err := svc.Diagnose(context.Background(), &userId, input)

	require.NoError(t, err)
	require.NotNil(t, res.ConversationId)
	assert.NotEqual(t, stale, *res.ConversationId)
	require.Len(t, chat.created, 1)
}

func TestDiagnoseRemovesStagedFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	clf := &fakeClassifier{result: skinResult()}
	svc := NewDiagnosisService(&fakeChatService{}, clf, &fakeStorage{url: "https://x/y.jpg"}, nopLogger{})
	svc.(*diagnosisService).stagingDir = dir

	_, err := svc.Diagnose(context.Background(), nil, jpegInput())
	require.NoError(t, err)

	assert.True(t, clf.pathExisted, "staged image must exist while the classifier runs")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiagnoseRemovesStagedFileOnClassifierFailure(t *testing.T) {
	dir := t.TempDir()
	clf := &fakeClassifier{err: &classifier.ProcessError{Detail: "exited with error"}}
	svc := NewDiagnosisService(&fakeChatService{}, clf, &fakeStorage{}, nopLogger{})
	svc.(*diagnosisService).stagingDir = dir

	_, err := svc.Diagnose(context.Background(), nil, jpegInput())
	require.Error(t, err)

	assert.True(t, clf.pathExisted)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComposeSummaryLimitsAlternatives(t *testing.T) {
	summary := composeSummary(skinResult())

	assert.Contains(t, summary, "Eczema")
	assert.Contains(t, summary, "81.5%")
	assert.Contains(t, summary, "Psoriasis")
	assert.Contains(t, summary, "Dermatitis")
	assert.Contains(t, summary, "Melanoma")
	assert.NotContains(t, summary, "Acne", "at most three alternatives")
}
