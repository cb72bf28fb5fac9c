package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/enrollment"
	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/internal/roster"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/export"
)

var errHelp = errors.New("help provided")

const rosterTitle = "Student Roster"

type recordService interface {
	roster.Lister
	enrollment.StudentWriter
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListMeasurements(ctx context.Context, studentID string) ([]models.Measurement, error)
}

type commandLine struct {
	records           recordService
	newCamera         func() enrollment.Camera
	maxTrainingImages int
	locks             *enrollment.RecordLocks
	logger            *zap.Logger
	out               io.Writer
}

// listFlag collects a repeatable, comma separated flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  roster [-search TERM] [-sort KEY]... [-export csv|pdf -o FILE] - list students with stats")
	fmt.Fprintln(cli.out, "  enroll -name N -roll R -photo FILE [-image FILE]... [-capture N] - register a student")
	fmt.Fprintln(cli.out, "  enroll -edit ID [-name N] ... [-photo FILE] [-image FILE]...       - edit a student")
	fmt.Fprintln(cli.out, "  delete -id ID                                                       - delete a student")
	fmt.Fprintln(cli.out, "  history -student ID                                                 - show measurements")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	rosterCmd := flag.NewFlagSet("roster", flag.ContinueOnError)
	rosterCmd.SetOutput(cli.out)
	rosterSearch := rosterCmd.String("search", "", "Filter by name or roll number.")
	var rosterSort listFlag
	rosterCmd.Var(&rosterSort, "sort", "Sort column; repeat a key to reverse it.")
	rosterExport := rosterCmd.String("export", "", "Export format: csv or pdf.")
	rosterOutput := rosterCmd.String("o", "", "Export file path. Defaults to roster.<ext>.")

	enrollCmd := flag.NewFlagSet("enroll", flag.ContinueOnError)
	enrollCmd.SetOutput(cli.out)
	enrollEdit := enrollCmd.String("edit", "", "Student ID to edit instead of registering.")
	enrollName := enrollCmd.String("name", "", "Full name.")
	enrollRoll := enrollCmd.String("roll", "", "Roll number.")
	enrollStandard := enrollCmd.String("standard", "", "Standard.")
	enrollDivision := enrollCmd.String("division", "", "Division.")
	enrollHeight := enrollCmd.String("height", "", "Height in centimetres.")
	enrollWeight := enrollCmd.String("weight", "", "Weight in kilograms.")
	enrollPhoto := enrollCmd.String("photo", "", "Profile photo file.")
	var enrollImages listFlag
	enrollCmd.Var(&enrollImages, "image", "Training image file; repeatable or comma separated.")
	enrollCapture := enrollCmd.Int("capture", 0, "Training stills to take from the capture device.")

	deleteCmd := flag.NewFlagSet("delete", flag.ContinueOnError)
	deleteCmd.SetOutput(cli.out)
	deleteID := deleteCmd.String("id", "", "Student ID.")

	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	historyCmd.SetOutput(cli.out)
	historyStudent := historyCmd.String("student", "", "Student ID.")

	switch args[1] {
	case "roster":
		if err := rosterCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.roster(ctx, *rosterSearch, rosterSort, *rosterExport, *rosterOutput)
	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		fields := map[enrollment.Field]*string{
			enrollment.FieldName:       enrollName,
			enrollment.FieldRollNumber: enrollRoll,
			enrollment.FieldStandard:   enrollStandard,
			enrollment.FieldDivision:   enrollDivision,
			enrollment.FieldHeight:     enrollHeight,
			enrollment.FieldWeight:     enrollWeight,
		}
		flagFields := map[string]enrollment.Field{
			"name": enrollment.FieldName, "roll": enrollment.FieldRollNumber,
			"standard": enrollment.FieldStandard, "division": enrollment.FieldDivision,
			"height": enrollment.FieldHeight, "weight": enrollment.FieldWeight,
		}
		set := make(map[enrollment.Field]string)
		enrollCmd.Visit(func(f *flag.Flag) {
			if field, ok := flagFields[f.Name]; ok {
				set[field] = *fields[field]
			}
		})
		return cli.enroll(ctx, enrollRequest{
			editID:  *enrollEdit,
			fields:  set,
			photo:   *enrollPhoto,
			images:  enrollImages,
			capture: *enrollCapture,
		})
	case "delete":
		if err := deleteCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *deleteID == "" {
			deleteCmd.Usage()
			return errHelp
		}
		if err := cli.records.DeleteStudent(ctx, *deleteID); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "deleted %s\n", *deleteID)
		return nil
	case "history":
		if err := historyCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *historyStudent == "" {
			historyCmd.Usage()
			return errHelp
		}
		return cli.history(ctx, *historyStudent)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) roster(ctx context.Context, search string, sorts []string, format, output string) error {
	vm := roster.NewViewModel(cli.records, cli.logger)
	if err := vm.Refresh(ctx); err != nil {
		return err
	}
	vm.SetSearchTerm(search)
	for _, raw := range sorts {
		key, err := roster.ParseSortKey(raw)
		if err != nil {
			return err
		}
		vm.SetSort(key)
	}

	view := vm.View()
	dataset := view.Dataset(rosterTitle)
	printDataset(cli.out, dataset)

	if format == "" {
		return nil
	}
	exporter, err := export.ForFormat(format)
	if err != nil {
		return err
	}
	content, err := exporter.Render(dataset)
	if err != nil {
		return err
	}
	if output == "" {
		output = "roster." + exporter.Extension()
	}
	if err := os.WriteFile(output, content, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cli.out, "exported %d students to %s\n", len(view.Records), output)
	return nil
}

func printDataset(w io.Writer, ds export.Dataset) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(ds.Headers, "\t"))
	for _, row := range ds.Rows {
		cells := make([]string, len(ds.Headers))
		for i, h := range ds.Headers {
			cells[i] = row[h]
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush() //nolint:errcheck
	fmt.Fprintln(w)
	for _, line := range ds.Summary {
		fmt.Fprintln(w, line)
	}
}

type enrollRequest struct {
	editID  string
	fields  map[enrollment.Field]string
	photo   string
	images  []string
	capture int
}

func (cli *commandLine) enroll(ctx context.Context, req enrollRequest) error {
	var existing *models.Student
	if req.editID != "" {
		student, err := cli.records.GetStudent(ctx, req.editID)
		if err != nil {
			return err
		}
		existing = student
	}

	vm := roster.NewViewModel(cli.records, cli.logger)
	opts := enrollment.SessionOptions{
		Student:           existing,
		MaxTrainingImages: cli.maxTrainingImages,
		Validator:         enrollment.NewValidator(),
		Logger:            cli.logger,
		Locks:             cli.locks,
		OnSubmitted: func(ctx context.Context, _ *models.Student) {
			if err := vm.Refresh(ctx); err != nil {
				cli.logger.Warn("roster refresh after submit failed", zap.Error(err))
			}
		},
	}
	if req.capture > 0 && cli.newCamera != nil {
		opts.Camera = cli.newCamera()
	}
	session := enrollment.NewSession(cli.records, opts)
	defer session.Close() //nolint:errcheck

	for _, field := range enrollment.ScalarFields {
		if v, ok := req.fields[field]; ok {
			if err := session.UpdateField(field, v); err != nil {
				return err
			}
		}
	}
	if err := session.Next(); err != nil {
		return err
	}

	if req.photo != "" {
		photo, err := enrollment.AttachmentFromFile(req.photo)
		if err != nil {
			return err
		}
		if err := session.AttachProfileImage(photo); err != nil {
			return err
		}
	}
	if err := session.Next(); err != nil {
		return err
	}

	attachments := make([]enrollment.Attachment, 0, len(req.images))
	for _, path := range req.images {
		img, err := enrollment.AttachmentFromFile(path)
		if err != nil {
			return err
		}
		attachments = append(attachments, img)
	}
	if len(attachments) > 0 {
		if err := session.AddTrainingImages(attachments...); err != nil {
			return err
		}
	}
	if req.capture > 0 {
		if err := cli.captureStills(ctx, session, req.capture); err != nil {
			return err
		}
	}

	student, err := session.Submit(ctx)
	if err != nil {
		return err
	}
	verb := "enrolled"
	if existing != nil {
		verb = "updated"
	}
	fmt.Fprintf(cli.out, "%s %s (%s) with %d training images\n", verb, student.Name, student.ID, len(student.TrainingImages))
	fmt.Fprintf(cli.out, "roster now holds %d students\n", len(vm.Records()))
	return nil
}

// captureStills takes n stills. A missing device only skips capture.
func (cli *commandLine) captureStills(ctx context.Context, session *enrollment.Session, n int) error {
	if err := session.StartCapture(ctx); err != nil {
		if errors.Is(err, appErrors.ErrDeviceUnavailable) {
			fmt.Fprintf(cli.out, "capture skipped: %v\n", err)
			return nil
		}
		return err
	}
	defer session.StopCapture() //nolint:errcheck
	for i := 0; i < n; i++ {
		if _, err := session.CaptureImage(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.out, "captured %d stills\n", n)
	return nil
}

func (cli *commandLine) history(ctx context.Context, studentID string) error {
	items, err := cli.records.ListMeasurements(ctx, studentID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(cli.out, "no measurements recorded")
		return nil
	}
	tw := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Recorded\tHeight (cm)\tWeight (kg)\tBMI\tCategory")
	for _, m := range items {
		bmiText, category := roster.Unavailable, roster.Unavailable
		if bmi, ok := roster.BMI(m.Height, m.Weight); ok {
			bmiText = fmt.Sprintf("%.1f", bmi)
			category = roster.Category(bmi)
		}
		fmt.Fprintf(tw, "%s\t%g\t%g\t%s\t%s\n", m.Timestamp.Format("2006-01-02 15:04"), m.Height, m.Weight, bmiText, category)
	}
	return tw.Flush()
}
